package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/console"
	"github.com/oakmoor/cairn/pkg/registry"
	"github.com/oakmoor/cairn/pkg/worker"
)

// registerDemoTypes declares the handful of fact/hyp types the demo
// workers below exchange. A real scenario would declare these from its
// own worker packages at import time; gamemaster inlines them since it
// has no worker packages of its own to import.
func registerDemoTypes(reg *registry.Registry) error {
	types := []registry.TypeDescriptor{
		{
			Name:   "digest_reported",
			Groups: []string{"observations"},
			Fields: map[string]registry.FieldSchema{
				"hex": {Kind: registry.KindString, Required: true},
			},
		},
		{
			Name:   "flag_candidate",
			Groups: []string{"hypotheses"},
			Fields: map[string]registry.FieldSchema{
				"reason": {Kind: registry.KindString, Required: true},
			},
		},
	}
	for _, td := range types {
		if err := reg.Register(td); err != nil {
			return err
		}
	}
	return nil
}

// demoTemplates returns the worker.Template set gamemaster registers
// with the Scheduler: one of each Kind, wired together so a seed fact
// flows through the whole pipeline — BackStory seeds an object, the NPC
// reacts to every object with a digest fact, and the Player reacts to
// digest facts with a hypothesis — end to end exercise of
// Scheduler.Register, the Interest Index, and Console's Add*/Get*
// surface.
func demoTemplates() map[string]*worker.Template {
	templates := map[string]*worker.Template{
		"intake": {
			Declaration: worker.Declaration{
				Name:          "intake",
				Description:   "turns a seed fact's payload into a blackboard object",
				Version:       "1.0",
				EngineVersion: "1.0",
			},
			Kind:       worker.KindBackStory,
			NewHandler: func() worker.Handler { return worker.Handler{OnFact: intakeHandler} },
		},
		"digest": {
			Declaration: worker.Declaration{
				Name:          "digest",
				Description:   "reports the SHA-256 digest of every new object",
				Version:       "1.0",
				EngineVersion: "1.0",
				// verbose defaults off. A template's own options take
				// precedence over a scenario's common: block, so a
				// common: verbose setting does not override this value.
				Options: map[string]any{"verbose": false},
			},
			Kind:       worker.KindNPC,
			NewHandler: func() worker.Handler { return worker.Handler{OnData: digestHandler} },
		},
		"flagger": {
			Declaration: worker.Declaration{
				Name:          "flagger",
				Description:   "raises a hypothesis for every digest report",
				Version:       "1.0",
				EngineVersion: "1.0",
				Interests:     worker.Interests{Facts: []string{"digest_reported"}},
			},
			Kind:       worker.KindPlayer,
			NewHandler: func() worker.Handler { return worker.Handler{OnFact: flaggerHandler} },
		},
	}
	return templates
}

func intakeHandler(_ context.Context, c *console.Console, fact *blackboard.Fact) error {
	payload, _ := fact.Fields["data"].([]byte)
	if len(payload) == 0 {
		payload = []byte(fact.Type)
	}
	if _, err := c.AddObject(payload, blackboard.Relations{}); err != nil {
		return fmt.Errorf("intake: add object: %w", err)
	}
	c.Print("seeded one object from", fact.Type)
	return nil
}

func digestHandler(_ context.Context, c *console.Console, obj *blackboard.Object) error {
	sum := sha256.Sum256(obj.Data)
	f := &blackboard.Fact{Type: "digest_reported"}
	if err := f.AddParentObject(obj.ID); err != nil {
		return err
	}
	if err := f.SetField("hex", hex.EncodeToString(sum[:])); err != nil {
		return err
	}
	if err := c.AddFact(f); err != nil {
		return fmt.Errorf("digest: add fact: %w", err)
	}
	if verbose, _ := c.Config()["verbose"].(bool); verbose {
		c.Print("digested object", obj.ID)
	}
	return nil
}

func flaggerHandler(_ context.Context, c *console.Console, fact *blackboard.Fact) error {
	hex, _ := fact.Fields["hex"].(string)
	h := &blackboard.Hyp{Type: "flag_candidate"}
	if err := h.AddParentFact(fact.ID); err != nil {
		return err
	}
	if err := h.SetField("reason", fmt.Sprintf("digest %s warrants review", hex)); err != nil {
		return err
	}
	if err := c.AddHyp(h); err != nil {
		return fmt.Errorf("flagger: add hyp: %w", err)
	}
	c.Print("flagged digest", hex)
	return nil
}
