package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/stemsapp/kai/pkg/bmff"
)

// printAtoms dumps the raw box tree of a container, indented by depth, with
// each box's size and (for leaves) payload length — useful for inspecting
// exactly what a save produced without going through the karaoke decoders.
func printAtoms(b *bmff.Box, depth int) {
	if b.Type != "" {
		indent := strings.Repeat("  ", depth)
		if b.IsLeaf() {
			fmt.Printf("%s%s (size=%d payload=%d)\n", indent, b.Type, b.Size, len(b.Payload))
		} else {
			fmt.Printf("%s%s (size=%d)\n", indent, b.Type, b.Size)
		}
	}
	for _, c := range b.Children {
		printAtoms(c, depth+1)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <m4a-file>\n", os.Args[0])
		os.Exit(1)
	}

	path := os.Args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	root, err := bmff.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", path, err)
		os.Exit(1)
	}

	printAtoms(root, -1)
}
