package demoserver

// FixtureResult is one fake search hit served by the demo server.
type FixtureResult struct {
	URL      string
	Title    string
	Snippet  string
	RepoName string // GitHub only
	FilePath string // GitHub only
}

// FixtureVersion is the corpus served while that version is active. Bumping
// the version changes snippets and adds or removes hits, so two scans taken
// across a bump produce a non-empty session diff.
type FixtureVersion struct {
	Google []FixtureResult
	GitHub []FixtureResult
}

// fixtureVersions is keyed by version number starting at 1. Lookups fall back
// to the closest lower version, matching how real pages rarely change all at
// once.
var fixtureVersions = map[int]FixtureVersion{
	1: {
		Google: []FixtureResult{
			{
				URL:     "https://demo.example.com/.env",
				Title:   "demo.example.com environment file",
				Snippet: "DB_PASSWORD=changeme DB_HOST=localhost",
			},
			{
				URL:     "https://demo.example.com/backup/",
				Title:   "Index of /backup",
				Snippet: "Parent Directory db-dump.sql.gz site-backup.tar.gz",
			},
		},
		GitHub: []FixtureResult{
			{
				URL:      "https://github.com/demo-org/api/blob/main/.env.example",
				RepoName: "demo-org/api",
				FilePath: ".env.example",
				Snippet:  "API_KEY=sk_test_000 placeholder values only",
			},
		},
	},
	2: {
		Google: []FixtureResult{
			{
				URL:     "https://demo.example.com/.env",
				Title:   "demo.example.com environment file",
				Snippet: "DB_PASSWORD=rotated-2024 DB_HOST=db.internal",
			},
			{
				URL:     "https://demo.example.com/admin/login.php",
				Title:   "Admin Login",
				Snippet: "Please enter your administrator credentials",
			},
		},
		GitHub: []FixtureResult{
			{
				URL:      "https://github.com/demo-org/api/blob/main/.env.example",
				RepoName: "demo-org/api",
				FilePath: ".env.example",
				Snippet:  "API_KEY=sk_test_000 placeholder values only",
			},
			{
				URL:      "https://github.com/demo-org/infra/blob/main/deploy/secrets.yaml",
				RepoName: "demo-org/infra",
				FilePath: "deploy/secrets.yaml",
				Snippet:  "aws_access_key_id: AKIA0000EXAMPLE",
			},
		},
	},
}

// MaxVersion is the highest defined corpus version.
const MaxVersion = 2

func fixtureFor(version int) FixtureVersion {
	for v := version; v >= 1; v-- {
		if f, ok := fixtureVersions[v]; ok {
			return f
		}
	}
	return FixtureVersion{}
}
