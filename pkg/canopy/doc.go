// Package canopy is a hierarchical topic classifier. It keeps a concept
// taxonomy, fits one linear model per concept from labelled examples and
// suggests the concepts a text is about, ranked by score.
//
// Quick start:
//
//	c, err := canopy.New(
//	    canopy.WithSchemeID("urn:example:news"),
//	    canopy.WithDatabase("sqlite", "canopy.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	_ = c.AddConcept("sport", nil)
//	_ = c.AddExamples(ctx, canopy.TrainingExample{ID: "d1", Text: "...", Concepts: []string{"sport"}})
//	_, _ = c.UpdateModel(ctx, false)
//
//	topics, _ := c.SuggestTopics(ctx, "the striker scored twice")
//
// A Classifier is safe for concurrent use. Queries never wait for training.
package canopy
