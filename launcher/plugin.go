// Package launcher maps trigger tokens to plugins and resolves raw input
// text into a target plugin plus the residual query.
package launcher

// Capabilities declares what a plugin can handle, as data rather than
// probed optional methods.
type Capabilities struct {
	HandlesEnter bool
	HandlesTab   bool
}

// Result is one item a plugin produced for a query. What happens when the
// user activates it is the plugin's business.
type Result struct {
	Title    string
	Subtitle string
	Icon     string
	Command  string
}

// Plugin is the closed interface every launcher plugin implements.
type Plugin interface {
	// Name uniquely identifies the plugin; registration rejects
	// duplicates.
	Name() string
	// Triggers returns the tokens that select this plugin. Tokens may
	// collide across plugins; resolution is first-registered-wins.
	Triggers() []string
	Capabilities() Capabilities
	// Query produces results for the residual query text after the
	// trigger token.
	Query(query string) []Result
}
