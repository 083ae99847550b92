// Package report computes the dashboard aggregates: the geographic heat grid,
// per-question option distributions and the submission export writers.
package report

import (
	"fmt"
	"math"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

type Cell struct {
	Count int    `json:"count"`
	Color string `json:"color"`
}

// HeatGrid is a rows×cols bucketing of geographic points. Cells carry a count
// and a white-to-red color proportional to count/max.
type HeatGrid struct {
	Rows [][]Cell `json:"rows"`
	Max  int      `json:"max"`
}

// span widening for degenerate bounding boxes, to avoid division by zero
const epsilon = 0.0001

// BuildHeatGrid buckets points into a fixed grid by linearly mapping each
// point inside the bounding box of the whole set.
func BuildHeatGrid(points []Point, rows, cols int) HeatGrid {
	counts := make([][]int, rows)
	for r := range counts {
		counts[r] = make([]int, cols)
	}

	maxCount := 0
	if len(points) > 0 {
		minLat, maxLat := points[0].Lat, points[0].Lat
		minLon, maxLon := points[0].Lon, points[0].Lon
		for _, p := range points[1:] {
			minLat = math.Min(minLat, p.Lat)
			maxLat = math.Max(maxLat, p.Lat)
			minLon = math.Min(minLon, p.Lon)
			maxLon = math.Max(maxLon, p.Lon)
		}
		if maxLat == minLat {
			maxLat += epsilon
			minLat -= epsilon
		}
		if maxLon == minLon {
			maxLon += epsilon
			minLon -= epsilon
		}

		for _, p := range points {
			r := int((p.Lat - minLat) / (maxLat - minLat) * float64(rows-1))
			c := int((p.Lon - minLon) / (maxLon - minLon) * float64(cols-1))
			r = clamp(r, 0, rows-1)
			c = clamp(c, 0, cols-1)
			counts[r][c]++
			if counts[r][c] > maxCount {
				maxCount = counts[r][c]
			}
		}
	}

	grid := HeatGrid{Rows: make([][]Cell, rows), Max: maxCount}
	for r := range counts {
		grid.Rows[r] = make([]Cell, cols)
		for c, count := range counts[r] {
			grid.Rows[r][c] = Cell{Count: count, Color: heatColor(count, maxCount)}
		}
	}
	return grid
}

// heatColor interpolates linearly from white (#ffffff) to red (#ff0000): the
// green and blue channels scale down from 255 as count approaches the max.
func heatColor(count, max int) string {
	if max == 0 {
		return "#ffffff"
	}
	t := float64(count) / float64(max)
	gb := int(255 * (1.0 - t))
	return fmt.Sprintf("#ff%02x%02x", gb, gb)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
