// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dialect

// Built-in dialect IDs, newest first.
const (
	V1_133 = "v1_133"
	V1_118 = "v1_118"
	V1_106 = "v1_106"
	V1_94  = "v1_94"
)

var defaultRegistry = MustRegistry(
	New(V1_133, Version{Major: 1, Minor: 133}, MemoryQueryOnThisDay, map[Operation]Template{
		OpVersion:      Path("/server/version"),
		OpAlbums:       Path("/albums"),
		OpAlbumInfo:    Path("/albums/{id}"),
		OpMemoryLane:   Path("/memories"),
		OpAssetInfo:    Path("/assets/{id}"),
		OpThumbnail:    Path("/assets/{id}/thumbnail?size=thumbnail"),
		OpPreview:      Path("/assets/{id}/thumbnail?size=preview"),
		OpOriginal:     Path("/assets/{id}/original"),
		OpVideoStream:  Path("/assets/{id}/video/playback"),
		OpSearch:       Path("/search/smart"),
		OpRandomSearch: Path("/search/random"),
	}),
	New(V1_118, Version{Major: 1, Minor: 118}, MemoryQueryDayMonth, map[Operation]Template{
		OpVersion:      Path("/server/version"),
		OpAlbums:       Path("/albums"),
		OpAlbumInfo:    Path("/albums/{id}"),
		OpMemoryLane:   Path("/assets/memory-lane"),
		OpAssetInfo:    Path("/assets/{id}"),
		OpThumbnail:    Path("/assets/{id}/thumbnail?size=thumbnail"),
		OpPreview:      Path("/assets/{id}/thumbnail?size=preview"),
		OpOriginal:     Path("/assets/{id}/original"),
		OpVideoStream:  Path("/assets/{id}/video/playback"),
		OpSearch:       Path("/search/smart"),
		OpRandomSearch: Unsupported,
	}),
	New(V1_106, Version{Major: 1, Minor: 106}, MemoryQueryDayMonth, map[Operation]Template{
		OpVersion:      Path("/server-info/version"),
		OpAlbums:       Path("/albums"),
		OpAlbumInfo:    Path("/albums/{id}"),
		OpMemoryLane:   Path("/assets/memory-lane"),
		OpAssetInfo:    Path("/assets/{id}"),
		OpThumbnail:    Path("/assets/{id}/thumbnail?size=thumbnail"),
		OpPreview:      Path("/assets/{id}/thumbnail?size=preview"),
		OpOriginal:     Path("/assets/{id}/original"),
		OpVideoStream:  Path("/assets/{id}/video/playback"),
		OpSearch:       Unsupported,
		OpRandomSearch: Unsupported,
	}),
	New(V1_94, Version{}, MemoryQueryDayMonth, map[Operation]Template{
		OpVersion:      Path("/server-info/version"),
		OpAlbums:       Path("/album"),
		OpAlbumInfo:    Path("/album/{id}"),
		OpMemoryLane:   Path("/asset/memory-lane"),
		OpAssetInfo:    Path("/asset/{id}"),
		OpThumbnail:    Path("/asset/file/{id}?isWeb=true"),
		OpPreview:      Unsupported,
		OpOriginal:     Path("/asset/file/{id}"),
		OpVideoStream:  Path("/asset/file/{id}?isWeb=true"),
		OpSearch:       Unsupported,
		OpRandomSearch: Unsupported,
	}),
)

// Default returns the built-in dialect table.
func Default() *Registry {
	return defaultRegistry
}
