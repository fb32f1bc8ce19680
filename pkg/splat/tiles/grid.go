// Package tiles bins projected footprints into screen tiles and sorts the
// resulting intersection records front to back.
package tiles

import gomath "math"

// DefaultTileSize is the edge length of a square tile in pixels.
const DefaultTileSize = 16

// Grid is the tile partition of every camera's image, flattened into one
// index space: tile ids run camera-major, then row-major within an image,
// so id = camera*PerCamera() + ty*TilesX + tx.
type Grid struct {
	TileSize int
	TilesX   int
	TilesY   int
	Width    int
	Height   int
	Cameras  int
}

// NewGrid covers a width x height image per camera with square tiles.
// Edge tiles may be partial.
func NewGrid(width, height, tileSize, cameras int) Grid {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return Grid{
		TileSize: tileSize,
		TilesX:   (width + tileSize - 1) / tileSize,
		TilesY:   (height + tileSize - 1) / tileSize,
		Width:    width,
		Height:   height,
		Cameras:  cameras,
	}
}

// PerCamera returns the number of tiles covering one image.
func (g Grid) PerCamera() int {
	return g.TilesX * g.TilesY
}

// Len returns the total number of tiles.
func (g Grid) Len() int {
	return g.Cameras * g.PerCamera()
}

// ID returns the global id of tile (tx, ty) of a camera.
func (g Grid) ID(camera, tx, ty int) int {
	return camera*g.PerCamera() + ty*g.TilesX + tx
}

// Split is the inverse of ID.
func (g Grid) Split(id int) (camera, tx, ty int) {
	camera = id / g.PerCamera()
	local := id % g.PerCamera()
	return camera, local % g.TilesX, local / g.TilesX
}

// Pixels returns the pixel rectangle [x0, x1) x [y0, y1) of a tile,
// clipped to the image.
func (g Grid) Pixels(id int) (x0, y0, x1, y1 int) {
	_, tx, ty := g.Split(id)
	x0, y0 = tx*g.TileSize, ty*g.TileSize
	x1 = min(x0+g.TileSize, g.Width)
	y1 = min(y0+g.TileSize, g.Height)
	return
}

// Rect returns the tile range [minX, maxX) x [minY, maxY) overlapped by the
// square of half-width radius around (cx, cy).
func (g Grid) Rect(cx, cy float64, radius int) (minX, minY, maxX, maxY int) {
	ts := float64(g.TileSize)
	r := float64(radius)
	minX = clampInt(int(gomath.Floor((cx-r)/ts)), 0, g.TilesX)
	minY = clampInt(int(gomath.Floor((cy-r)/ts)), 0, g.TilesY)
	maxX = clampInt(int(gomath.Ceil((cx+r)/ts)), 0, g.TilesX)
	maxY = clampInt(int(gomath.Ceil((cy+r)/ts)), 0, g.TilesY)
	return
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
