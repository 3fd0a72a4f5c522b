package install

// SourceType identifies where a server's assets come from.
type SourceType string

const (
	SourceNpm    SourceType = "npm"
	SourceGithub SourceType = "github"
	SourceLocal  SourceType = "local"
)

// Config is an install request. Source selects which field group applies:
// npm uses PackageName/Version/Global/Registry, github uses
// Repository/Branch/Tag/Commit/SubPath, local uses Path.
type Config struct {
	Source SourceType `json:"source"`

	// npm
	PackageName string `json:"package_name,omitempty"`
	Version     string `json:"version,omitempty"`
	Global      bool   `json:"global,omitempty"`
	Registry    string `json:"registry,omitempty"`

	// github
	Repository string `json:"repository,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Commit     string `json:"commit,omitempty"`
	SubPath    string `json:"sub_path,omitempty"`

	// local
	Path string `json:"path,omitempty"`
}

// DependencyInfo reports availability of one external tool the install needs.
type DependencyInfo struct {
	Name        string  `json:"name"`
	Required    bool    `json:"required"`
	Installed   bool    `json:"installed"`
	InstallPath *string `json:"install_path,omitempty"`
}

// Validation is the result of static + environment checks for a Config.
type Validation struct {
	Valid         bool             `json:"valid"`
	Errors        []string         `json:"errors"`
	Warnings      []string         `json:"warnings"`
	Dependencies  []DependencyInfo `json:"dependencies"`
	EstimatedSize *uint64          `json:"estimated_size,omitempty"` // bytes
	EstimatedTime *uint64          `json:"estimated_time,omitempty"` // seconds
}
