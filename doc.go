// Package robomem provides a spatio-temporal memory graph for mobile robots.
//
// The memory records a robot's trajectory as a chain of timestamped RobotNodes
// and the entities it perceives as deduplicated WorldNodes. Every perception of
// an entity is kept as a SpatialEdge from the robot node that made it, so a
// reasoning component can ask both where things are believed to be and how that
// belief was formed.
//
// # Basic Usage
//
// Create a client on top of a graph store:
//
//	store, err := driver.NewBadgerStore("/var/lib/robomem", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	memory, err := robomem.NewClient(store, robomem.DefaultConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer memory.Close(ctx)
//
//	// Rebuild state written by a previous run
//	if err := memory.Restore(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Ingesting Observations
//
// Each tick of the robot becomes one observation. Mentions are given relative
// to the robot pose; bearings are radians counter-clockwise from the heading:
//
//	result, err := memory.Ingest(ctx, types.Observation{
//		Time:              time.Now(),
//		Pose:              spatial.Position{X: 1, Y: 2},
//		Orientation:       math.Pi / 2,
//		VisualDescription: "a red can next to a wall",
//		Mentions: []types.EntityMention{{
//			Type:        types.TargetEntity,
//			Relative:    spatial.RelativePosition{Distance: 1.5, Bearing: 0.3},
//			Description: "red can",
//		}},
//	})
//
// A mention within the matching radius of a known entity of the same type is
// merged into it; otherwise a new entity is created. Observations must arrive
// in strictly increasing time order unless a reorder tolerance is configured.
//
// # Querying
//
//	node, _ := memory.NodeAt(ctx, t)
//	near, _ := memory.EntitiesNear(ctx, spatial.Position{X: 2, Y: 3}, 1.5)
//	history, _ := memory.ObservationHistory(ctx, near[0].Entity.ID)
//	prompt, _ := memory.Describe(ctx)
//
// # Maintenance
//
// Confidence of entities that go unobserved decays toward a floor, either on
// demand with Decay or periodically with StartDecayLoop. Decay never deletes an
// entity.
package robomem
