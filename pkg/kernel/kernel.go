// Package kernel defines the geometry payload shared by every part instance
// and the asset sources that produce it. The payload is opaque to the
// placement engine: it is loaded once, cached by variant name and handed to
// the rendering host untouched.
package kernel

import "context"

// Source loads the geometry payload stored at path. Implementations must be
// safe to call from several goroutines at once.
type Source interface {
	Load(ctx context.Context, path string) (*Mesh, error)
}

// RawSource loads always-needed auxiliary assets (textures, environment
// maps) that are not meshes.
type RawSource interface {
	LoadRaw(ctx context.Context, path string) ([]byte, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, path string) (*Mesh, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context, path string) (*Mesh, error) {
	return f(ctx, path)
}
