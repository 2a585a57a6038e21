// Package command defines the commands Tribune's workflows emit.
//
// A Command is a request to change an aggregate. Sagas derive commands from
// their state and accumulated workflow data; a command handler outside the
// core turns them into events. The set of commands is closed: every type in
// this package implements Command through an unexported marker method.
package command
