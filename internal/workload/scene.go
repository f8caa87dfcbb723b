// Package workload drives a synthetic scene graph through the reactive engine: concurrent
// producers write node parenting, group offsets, local positions and visibility while a single
// driver ticks the scheduler and mirrors the derived world positions into a dense buffer.
package workload

import (
	"math/rand/v2"

	"github.com/openfga/reactive/pkg/collector"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/relation"
	"github.com/openfga/reactive/pkg/scheduler"
)

// Scene holds the writable sources of the scene graph.
type Scene struct {
	// Parents maps every node to the group it belongs to.
	Parents *reactive.Source[uint32, uint32]
	// Offsets is the translation applied by each group to its nodes.
	Offsets *reactive.Source[uint32, float64]
	// Locals is each node's own position.
	Locals *reactive.Source[uint32, float64]
	// Visible is the set of nodes currently drawn.
	Visible *reactive.Source[uint32, struct{}]

	nodes     uint32
	groups    uint32
	groupSize uint32
}

// GPUBuffer is the consumer-side mirror updated once per tick.
type GPUBuffer struct {
	// World holds the resolved world position of every node, indexed by node.
	World *query.Dense[uint32, float64]
	// Groups is the set of groups referenced by at least one visible node.
	Groups *collector.HashContainer[uint32, struct{}]
}

// Tokens are the scheduler handles of a registered scene.
type Tokens struct {
	Buffer       scheduler.UpdaterToken[GPUBuffer]
	VisibleWorld scheduler.QueryToken[uint32, float64]
}

// NewScene is a function that creates the sources for nodes nodes split into groups of
// groupSize.
func NewScene(nodes, groupSize int) *Scene {
	groups := (nodes + groupSize - 1) / groupSize
	return &Scene{
		Parents:   reactive.NewSource[uint32, uint32](reactive.WithReceiverLabel[uint32, uint32]("parents")),
		Offsets:   reactive.NewSource[uint32, float64](reactive.WithReceiverLabel[uint32, float64]("offsets")),
		Locals:    reactive.NewSource[uint32, float64](reactive.WithReceiverLabel[uint32, float64]("locals")),
		Visible:   reactive.NewSource[uint32, struct{}](reactive.WithReceiverLabel[uint32, struct{}]("visible")),
		nodes:     uint32(nodes),
		groups:    uint32(groups),
		groupSize: uint32(groupSize),
	}
}

// Populate writes the initial state: node i belongs to group i/groupSize, every group has a zero
// offset and every node is visible.
func (s *Scene) Populate() {
	s.Offsets.Batch(func(w *reactive.SourceWriter[uint32, float64]) {
		for g := range s.groups {
			w.Insert(g, 0)
		}
	})
	s.Parents.Batch(func(w *reactive.SourceWriter[uint32, uint32]) {
		for n := range s.nodes {
			w.Insert(n, n/s.groupSize)
		}
	})
	s.Locals.Batch(func(w *reactive.SourceWriter[uint32, float64]) {
		for n := range s.nodes {
			w.Insert(n, float64(n))
		}
	})
	s.Visible.Batch(func(w *reactive.SourceWriter[uint32, struct{}]) {
		for n := range s.nodes {
			w.Insert(n, struct{}{})
		}
	})
}

// Mutate performs one random write.
func (s *Scene) Mutate(rng *rand.Rand) {
	node := rng.Uint32N(s.nodes)
	switch rng.IntN(5) {
	case 0:
		s.Parents.Insert(node, rng.Uint32N(s.groups))
	case 1:
		s.Offsets.Insert(rng.Uint32N(s.groups), rng.Float64()*100)
	case 2:
		if _, ok := s.Visible.Get(node); ok {
			s.Visible.Remove(node)
			return
		}
		s.Visible.Insert(node, struct{}{})
	default:
		s.Locals.Mutate(node, func(v *float64) {
			*v += rng.Float64() - 0.5
		})
	}
}

// Close closes every source.
func (s *Scene) Close() error {
	return closeAll(s.Parents, s.Offsets, s.Locals, s.Visible)
}

type closer interface {
	Close() error
}

func closeAll(cs ...closer) error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RegisterOptions selects how the derived graph is built.
type RegisterOptions struct {
	DenseRelation bool
	Validate      bool
	Logger        logger.Logger
}

// Register builds the derived queries of the scene and registers them with qctx:
//
//	inherited = fanout(offsets, parents)          node -> offset of its group
//	world     = locals + inherited                node -> world position
//	groups    = reduce(visible, parents)          groups referenced by a visible node
//	visible   = world filtered by visible         registered as a query
//	buffer    = world and groups mirrored         registered as a multi updater
func (s *Scene) Register(qctx *scheduler.ReactiveQueryCtx, opts RegisterOptions) Tokens {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}

	parents := reactive.NewFork[uint32, uint32](s.Parents)
	visible := reactive.NewFork[uint32, struct{}](s.Visible)

	var rel relation.OneToMany[uint32, uint32]
	if opts.DenseRelation {
		rel = relation.NewDenseRelation[uint32, uint32](parents)
	} else {
		rel = relation.NewHashRelation[uint32, uint32](parents)
	}

	inherited := relation.Fanout[uint32, uint32, float64](s.Offsets, rel)
	world := reactive.Map(reactive.Intersect[uint32, float64, float64](s.Locals, inherited), func(p reactive.Pair[float64, float64]) float64 {
		return p.Left + p.Right
	})
	groups := relation.ManyToOneReduce[uint32, uint32, struct{}](visible, parents.Clone())

	if opts.Validate {
		world = reactive.Debug(world, "world", opts.Logger, reactive.WithValidation())
		groups = reactive.Debug(groups, "groups", opts.Logger, reactive.WithValidation())
	}

	worldFork := reactive.NewFork(world)
	visibleWorld := reactive.FilterByKeySet[uint32, float64, struct{}](worldFork.Clone(), visible.Clone())

	buffer := collector.NewMultiUpdateContainer(GPUBuffer{
		World:  collector.NewDenseContainer[uint32, float64](int(s.nodes)),
		Groups: collector.NewHashContainer[uint32, struct{}](),
	}).
		AddSource(collector.ContainerUpdater(worldFork, func(b *GPUBuffer) collector.Container[uint32, float64] {
			return b.World
		})).
		AddSource(collector.ContainerUpdater(groups, func(b *GPUBuffer) collector.Container[uint32, struct{}] {
			return b.Groups
		}))

	return Tokens{
		Buffer:       scheduler.RegisterMultiUpdater(qctx, "gpu-buffer", buffer),
		VisibleWorld: scheduler.RegisterReactiveQuery(qctx, "visible-world", visibleWorld),
	}
}
