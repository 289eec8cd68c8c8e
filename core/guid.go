package core

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// graphNamespace scopes graph GUIDs among other name-based UUIDs.
var graphNamespace = uuid.MustParse("6f1c1f0e-7a52-4d8e-9b55-2b1f6d3c9a40")

// GraphGUID is a content address of a graph's topology.
type GraphGUID = uuid.UUID

// GUIDFrom hashes nodes, edges and connectors of g. Two graphs built
// independently from the same input get the same GUID; occupancy and
// crossing state do not contribute.
func GUIDFrom(g *Graph) GraphGUID {
	return uuid.NewSHA1(graphNamespace, StructuralDigest(g))
}

// StructuralDigest is the SHA3-256 digest behind GUIDFrom.
func StructuralDigest(g *Graph) []byte {
	h := sha3.New256()
	var buf []byte

	nodes := g.SortedNodes()
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(nodes)))
	for _, n := range nodes {
		buf = binary.BigEndian.AppendUint64(buf, uint64(n.id))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(n.position[0]))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(n.position[1]))
	}
	h.Write(buf)

	edges := slices.Clone(g.edges)
	slices.SortFunc(edges, compareEdgeKeys)
	buf = binary.BigEndian.AppendUint64(buf[:0], uint64(len(edges)))
	for _, e := range edges {
		buf = appendEdgeKey(buf, e.key)
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(e.lanes)))
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.length))
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.maxVelocity))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(e.priority)))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(e.meters))
	}
	h.Write(buf)

	buf = buf[:0]
	for _, n := range nodes {
		for _, in := range sortedEdgesByKey(n.incoming) {
			for _, from := range in.lanes {
				targets := slices.Clone(n.connectors[from])
				slices.SortFunc(targets, func(a, b *Lane) int {
					if c := compareEdgeKeys(a.edge, b.edge); c != 0 {
						return c
					}
					return a.index - b.index
				})
				for _, to := range targets {
					buf = appendEdgeKey(buf, in.key)
					buf = binary.BigEndian.AppendUint64(buf, uint64(from.index))
					buf = appendEdgeKey(buf, to.edge.key)
					buf = binary.BigEndian.AppendUint64(buf, uint64(to.index))
				}
			}
		}
	}
	h.Write(buf)

	return h.Sum(nil)
}

func appendEdgeKey(buf []byte, k EdgeKey) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(k.Street))
	buf = binary.BigEndian.AppendUint64(buf, uint64(k.Origin))
	return binary.BigEndian.AppendUint64(buf, uint64(k.Destination))
}

func sortedEdgesByKey(edges []*DirectedEdge) []*DirectedEdge {
	out := slices.Clone(edges)
	slices.SortFunc(out, compareEdgeKeys)
	return out
}

func compareEdgeKeys(a, b *DirectedEdge) int {
	ka, kb := a.key, b.key
	switch {
	case ka.Origin != kb.Origin:
		return cmpUint(uint64(ka.Origin), uint64(kb.Origin))
	case ka.Destination != kb.Destination:
		return cmpUint(uint64(ka.Destination), uint64(kb.Destination))
	case ka.Street < kb.Street:
		return -1
	case ka.Street > kb.Street:
		return 1
	}
	return 0
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	return 1
}
