// Package logging builds the slog logger shared by every component.
//
// Components never configure logging themselves. They accept a *slog.Logger
// (nil means slog.Default()) and tag it with a "component" attribute.
package logging
