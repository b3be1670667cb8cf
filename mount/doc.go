// Package mount decides which host directories a module may see.
//
// Only directories are ever mounted, and each one appears inside the
// sandbox at the same path it has on the host, so file arguments can be
// passed to a module unchanged. Everything else the module touches lands in
// a per-invocation scratch directory mounted at "/".
package mount
