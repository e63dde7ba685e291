// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import "encoding/json"

// Asset types reported by Immich.
const (
	AssetTypeImage = "IMAGE"
	AssetTypeVideo = "VIDEO"
)

// Asset is the subset of an Immich asset the display client uses.
type Asset struct {
	ID               string `json:"id"`
	Type             string `json:"type,omitempty"`
	OriginalFileName string `json:"originalFileName,omitempty"`
	OriginalMimeType string `json:"originalMimeType,omitempty"`
	FileCreatedAt    string `json:"fileCreatedAt,omitempty"`
	LocalDateTime    string `json:"localDateTime,omitempty"`
	Duration         string `json:"duration,omitempty"`
	IsFavorite       bool   `json:"isFavorite,omitempty"`
	// AlbumName is stamped by AlbumAssets; Immich does not send it.
	AlbumName string `json:"albumName,omitempty"`
}

// IsVideo reports whether the asset should go through the video proxy.
func (a Asset) IsVideo() bool { return a.Type == AssetTypeVideo }

// Album is an album summary.
type Album struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AssetCount int    `json:"assetCount"`
}

// albumJSON accepts every name field seen across Immich releases.
type albumJSON struct {
	ID             string  `json:"id"`
	AlbumName      string  `json:"albumName"`
	Name           string  `json:"name"`
	Title          string  `json:"title"`
	AlbumNameSnake string  `json:"album_name"`
	AssetCount     int     `json:"assetCount"`
	Assets         []Asset `json:"assets"`
}

func (a albumJSON) displayName() string {
	for _, n := range []string{a.AlbumName, a.Name, a.Title, a.AlbumNameSnake} {
		if n != "" {
			return n
		}
	}
	return ""
}

// Person is a recognised face on an asset.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssetInfo is the metadata shown next to an asset.
type AssetInfo struct {
	ExifInfo map[string]any `json:"exifInfo"`
	People   []Person       `json:"people"`
}

type memoryJSON struct {
	Assets []Asset `json:"assets"`
}

// searchResponse accepts {"assets":{"items":[...]}}, {"items":[...]} and
// a bare array.
type searchResponse struct {
	Items []Asset
}

func (s *searchResponse) UnmarshalJSON(b []byte) error {
	var arr []Asset
	if err := json.Unmarshal(b, &arr); err == nil {
		s.Items = arr
		return nil
	}
	var obj struct {
		Assets *struct {
			Items []Asset `json:"items"`
		} `json:"assets"`
		Items []Asset `json:"items"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Assets != nil {
		s.Items = obj.Assets.Items
	} else {
		s.Items = obj.Items
	}
	return nil
}
