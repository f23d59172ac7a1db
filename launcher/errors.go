package launcher

import "fmt"

// DuplicateLauncherError is returned by Register when a plugin with the
// same name is already registered. Token collisions are not errors; they
// become ambiguous owners resolved first-registered-wins.
type DuplicateLauncherError struct {
	Name string
}

func (e *DuplicateLauncherError) Error() string {
	return fmt.Sprintf("launcher %q already registered", e.Name)
}

// ErrUnknownPlugin is returned when an alias names a plugin that is not
// registered.
type ErrUnknownPlugin struct {
	Name string
}

func (e *ErrUnknownPlugin) Error() string {
	return fmt.Sprintf("unknown plugin %q", e.Name)
}
