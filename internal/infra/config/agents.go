package config

// defaultAgents is the stock roster used when the config file declares none.
// "general" is the default agent and is declared first.
func defaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			ID:          "general",
			Name:        "General Assistant",
			Description: "Conversational questions and tasks that need no specialised expertise.",
			Keywords:    []string{"explain", "what", "how", "why", "help"},
			SystemPrompt: `You are a helpful general assistant.
Answer clearly and concisely. When a question clearly belongs to databases,
C#/.NET or the Epicor P21 ERP, say that another agent can go deeper.`,
		},
		{
			ID:          "sql",
			Name:        "SQL Expert",
			Description: "Writes and explains SQL queries against relational databases.",
			Keywords:    []string{"sql", "query", "select", "database", "table", "join", "count", "rows"},
			Output:      "sql",
			SystemPrompt: `You are an expert SQL developer.
Translate the request into a single read-only SQL query, explain it briefly,
and always put the query in a fenced sql code block.`,
		},
		{
			ID:          "csharp",
			Name:        "C# Expert",
			Description: "C# language, .NET, ASP.NET Core, Entity Framework Core and LINQ.",
			Keywords:    []string{"c#", "csharp", ".net", "dotnet", "linq", "asp.net", "entity framework", "class"},
			Output:      "code",
			SystemPrompt: `You are an expert C# and .NET developer assistant.
Your expertise includes modern C#, .NET 6+, ASP.NET Core, Entity Framework Core,
LINQ, async/await and dependency injection.
Give clear explanations with complete, working code examples in fenced blocks.`,
		},
		{
			ID:          "epicor",
			Name:        "Epicor P21 Specialist",
			Description: "Epicor Prophet 21 ERP: order entry, inventory, customers and exports.",
			Keywords:    []string{"epicor", "p21", "prophet 21", "erp", "inventory", "order entry", "export"},
			SystemPrompt: `You are an Epicor Prophet 21 (P21) ERP specialist.
Explain P21 concepts, tables and workflows precisely. Reference screens and
table names where they help, and point to the SQL or C# agents for code.`,
		},
	}
}
