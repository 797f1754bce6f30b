package users

import (
	"errors"
	"fmt"
	"strings"
)

// profile columns writable through UpdateProfile
var allowedColumns = map[string]bool{
	"nickname":       true,
	"status_message": true,
	"profile_image":  true,
}

// updateBuilder maps a sparse update request to a fixed set of column
// assignments, validated against the allow-list. It replaces ad-hoc string
// concatenation of SQL fragments for optional-field updates.
type updateBuilder struct {
	assignments []string
	args        []interface{}
}

func newUpdateBuilder() *updateBuilder {
	return &updateBuilder{}
}

// Set registers a column assignment when value is non-nil. Columns outside
// the allow-list panic: that is a programming error, not caller input.
func (b *updateBuilder) Set(column string, value *string) {
	if !allowedColumns[column] {
		panic(fmt.Sprintf("column %q is not updatable", column))
	}
	if value == nil {
		return
	}
	b.args = append(b.args, *value)
	b.assignments = append(b.assignments, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// Build returns the assignment list and ordered args. Errors when no field
// was set.
func (b *updateBuilder) Build() (string, []interface{}, error) {
	if len(b.assignments) == 0 {
		return "", nil, errors.New("no fields to update")
	}
	return strings.Join(b.assignments, ", "), b.args, nil
}
