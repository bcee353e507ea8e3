package models

// Context is the resolved, typed set of values available to a step's container at launch time.
// It replaces a dynamic dict of variables: every leaf is a known Go field, so a missing or
// mistyped value is a compile error, not a runtime lookup failure.
type Context struct {
	OrgID OrgID `structs:"org_id"`
	RunID string `structs:"run_id"`

	// Run carries the run-scoped variables threaded through from the run's initial input,
	// merged with any values the playbook's earlier steps have written back via outputs.
	Run RunContext `structs:"run"`

	// Members maps a role name (e.g. "requester", "approver") to the user identity that
	// occupies it for this run, as resolved by the caller that started the run.
	Members map[string]Member `structs:"members"`
}

type RunContext struct {
	Variables map[string]string `structs:"variables"`
}

type Member struct {
	UserID string `structs:"user_id"`
	Email  string `structs:"email"`
}

// Lookup returns a run variable by name. The bool is false if the variable was never set,
// distinguishing "absent" from "set to the empty string".
func (c Context) Lookup(name string) (string, bool) {
	v, ok := c.Run.Variables[name]
	return v, ok
}

// Require returns a run variable by name or an error naming the missing variable. Callers
// that need a variable to launch a step must fail fast through this rather than silently
// treating an absent variable as an empty string.
func (c Context) Require(name string) (string, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return "", errMissingVariable(name)
	}
	return v, nil
}

type missingVariableError struct {
	name string
}

func errMissingVariable(name string) error {
	return &missingVariableError{name: name}
}

func (e *missingVariableError) Error() string {
	return "required context variable not set: " + e.name
}
