// plytool is a CLI utility for inspecting and editing Gaussian splat PLY files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Faultbox/gsplat/internal/assets"
	"github.com/Faultbox/gsplat/pkg/formats"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "random", "gen":
		err = cmdRandom(args)
	case "crop":
		err = cmdCrop(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`plytool - Gaussian splat PLY utility

Usage:
  plytool <command> [options]

Commands:
  info <file.ply>                   Show header and scene statistics
  random [options] <out.ply>        Write a random scene
  crop [options] <in.ply> <out.ply> Keep primitives inside a box

Examples:
  plytool info point_cloud.ply
  plytool random -n 50000 -degree 3 scene.ply
  plytool crop -min -1,-1,-1 -max 1,1,1 -opacity 0.05 in.ply out.ply`)
}

var printer = message.NewPrinter(language.English)

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: plytool info <file.ply>")
	}

	ply, err := formats.ParsePLYFile(args[0])
	if err != nil {
		return err
	}
	g := ply.Gaussians
	h := ply.Header

	fmt.Printf("File:       %s\n", args[0])
	fmt.Printf("Format:     %s %s\n", h.Format, h.Version)
	printer.Printf("Primitives: %d\n", g.Len())
	if g.UsesSH() {
		fmt.Printf("Colors:     SH degree %d (%d coefficients)\n", g.SHDegree, g.Bases)
	} else {
		fmt.Printf("Colors:     flat, %d channels\n", g.Channels)
	}
	fmt.Printf("Planar:     %v\n", ply.Planar)

	if g.Len() > 0 {
		lo, hi := g.Bounds()
		fmt.Printf("Bounds:     (%.3f, %.3f, %.3f) .. (%.3f, %.3f, %.3f)\n", lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)
		var sum float64
		for _, o := range g.Opacities {
			sum += o
		}
		fmt.Printf("Opacity:    %.3f mean\n", sum/float64(g.Len()))
	}

	for _, c := range h.Comments {
		fmt.Printf("Comment:    %s\n", c)
	}
	fmt.Println()
	fmt.Println("Elements:")
	for _, el := range h.Elements {
		printer.Printf("  %-10s %d (%d properties)\n", el.Name, el.Count, len(el.Properties))
	}
	return nil
}

func cmdRandom(args []string) error {
	fs := flag.NewFlagSet("random", flag.ExitOnError)
	n := fs.Int("n", 10000, "Number of primitives")
	degree := fs.Int("degree", 3, "SH degree (-1 = flat RGB)")
	seed := fs.Int64("seed", 1, "Random seed")
	planar := fs.Bool("planar", false, "Zero the third scale for surfel rendering")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: plytool random [options] <out.ply>")
	}

	g := assets.RandomScene(*n, *degree, *seed, *planar)
	comment := fmt.Sprintf("random scene seed %d", *seed)
	if err := formats.WritePLYFile(fs.Arg(0), g, comment); err != nil {
		return err
	}
	printer.Printf("Wrote %d primitives to %s\n", g.Len(), fs.Arg(0))
	return nil
}

func cmdCrop(args []string) error {
	fs := flag.NewFlagSet("crop", flag.ExitOnError)
	minFlag := fs.String("min", "", "Box minimum x,y,z (empty = unbounded)")
	maxFlag := fs.String("max", "", "Box maximum x,y,z (empty = unbounded)")
	opacity := fs.Float64("opacity", 0, "Drop primitives below this opacity")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: plytool crop [options] <in.ply> <out.ply>")
	}

	box, err := parseBox(*minFlag, *maxFlag)
	if err != nil {
		return err
	}
	ply, err := formats.ParsePLYFile(fs.Arg(0))
	if err != nil {
		return err
	}

	keep := cropIndices(ply.Gaussians, box, *opacity)
	out := ply.Gaussians.Subset(keep)
	if err := formats.WritePLYFile(fs.Arg(1), out, ply.Header.Comments...); err != nil {
		return err
	}
	printer.Printf("Kept %d of %d primitives\n", out.Len(), ply.Gaussians.Len())
	return nil
}

// box is an axis-aligned crop region; missing bounds are infinite.
type box struct {
	lo, hi math.Vec3
}

func parseBox(lo, hi string) (box, error) {
	inf := 1e300
	b := box{
		lo: math.Vec3{X: -inf, Y: -inf, Z: -inf},
		hi: math.Vec3{X: inf, Y: inf, Z: inf},
	}
	var err error
	if lo != "" {
		if b.lo, err = parseVec3(lo); err != nil {
			return b, fmt.Errorf("-min: %w", err)
		}
	}
	if hi != "" {
		if b.hi, err = parseVec3(hi); err != nil {
			return b, fmt.Errorf("-max: %w", err)
		}
	}
	return b, nil
}

func parseVec3(s string) (math.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return math.Vec3{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return math.Vec3{}, fmt.Errorf("bad component %q", p)
		}
		v[i] = f
	}
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (b box) contains(p math.Vec3) bool {
	return p.X >= b.lo.X && p.X <= b.hi.X &&
		p.Y >= b.lo.Y && p.Y <= b.hi.Y &&
		p.Z >= b.lo.Z && p.Z <= b.hi.Z
}

func cropIndices(g *splat.Gaussians, b box, minOpacity float64) []int {
	var keep []int
	for i, m := range g.Means {
		if b.contains(m) && g.Opacities[i] >= minOpacity {
			keep = append(keep, i)
		}
	}
	return keep
}
