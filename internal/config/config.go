// Package config holds the engine's compiled-in defaults and the small set
// of values a deployment may override, mirroring the teacher's practice of
// keeping runtime configuration as plain structs with sane defaults rather
// than a dedicated config-file format.
package config

import "github.com/shibudb/vfsdb/internal/distance"

// SearchType selects between the ranker's two modes.
type SearchType string

const (
	SearchExact       SearchType = "exact"
	SearchApproximate SearchType = "approximate"
)

// DistanceMethod names one of the four distance kernels a client may pick.
type DistanceMethod string

const (
	DistanceEuclidean     DistanceMethod = "euclidean"
	DistanceCosine        DistanceMethod = "cosine"
	DistanceSIMDEuclidean DistanceMethod = "simd_euclidean"
	DistanceSIMDCosine    DistanceMethod = "simd_cosine"
)

// Metric resolves a DistanceMethod to the distance.Metric used internally.
// Each of the four values maps to its own distance.Metric: the "simd"
// variants are a caller's explicit request for the SIMD kernel and panic at
// compute time on an unsupported dimension rather than being silently
// downgraded to their scalar counterparts.
func (m DistanceMethod) Metric() distance.Metric {
	switch m {
	case DistanceCosine:
		return distance.Cosine
	case DistanceSIMDEuclidean:
		return distance.SIMDEuclidean
	case DistanceSIMDCosine:
		return distance.SIMDCosine
	default:
		return distance.Euclidean
	}
}

// Config is the engine's full set of tunables. Zero value is invalid; use
// Default() and override individual fields.
type Config struct {
	// FlushThreshold is the memtable size that triggers an automatic flush.
	// Reference value 10 for tests; production deployments should set this
	// between 1,000 and 10,000.
	FlushThreshold int

	// StoragePath is the append-only data file's location.
	StoragePath string
	// StatePath is the engine snapshot's location.
	StatePath string
	// DefaultPort is used when the CLI is not given a port argument.
	DefaultPort int

	SearchType     SearchType
	DistanceMethod DistanceMethod
	EfSearch       int
	EfConstruction int
	M              int
	M0             int
}

// Default returns the spec's reference configuration.
func Default() Config {
	return Config{
		FlushThreshold: 10,
		StoragePath:    "data/vectors.dat",
		StatePath:      "state/vfs_state.bin",
		DefaultPort:    9001,

		SearchType:     SearchExact,
		DistanceMethod: DistanceEuclidean,
		EfConstruction: 400,
		EfSearch:       400,
		M:              16,
		M0:             40,
	}
}
