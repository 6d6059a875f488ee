// Package schemas holds the shared data model of the chatdock engine:
// automation actions, templates, execution results and embedded-context
// state. It has no behavior beyond validation and defaulting so that every
// other package can depend on it without cycles.
package schemas
