// Package core defines the core business types and interfaces for the syllable service.
package core

import "context"

// ResourceRef is an opaque reference to a playable audio resource. For the NATS-backed
// deployment it is the object key of the asset inside the audio bucket.
type ResourceRef string

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// ObjectLister lists the object names held by a blob store.
type ObjectLister interface {
	List(ctx context.Context) ([]string, error)
}

// AudioPlayer begins playback of an audio resource. Play is fire-and-forget: implementations
// report their own failures and never block the caller on playback completion.
type AudioPlayer interface {
	Play(ref ResourceRef)
}
