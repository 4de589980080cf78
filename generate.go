package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"writingway/generator"
)

type generateFlags struct {
	sceneID        string
	beat           string
	povCharacter   string
	pov            string
	tense          string
	prosePromptID  string
	compendiumIDs  []string
	compendiumTags []string
	chapters       map[string]string
	scenes         map[string]string
	sceneTags      []string
	dryRun         bool
	mock           bool
}

func newGenerateCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Expand a beat into prose at the end of a scene",
		Long: "Streams the backend's continuation of the scene to stdout and keeps it.\n" +
			"With --dry-run the continuation is shown and then discarded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), a, cmd.OutOrStdout(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.sceneID, "scene", "", "scene id")
	fl.StringVar(&f.beat, "beat", "", "beat to expand; may contain @[Entry] and #[Scene] mentions")
	fl.StringVar(&f.povCharacter, "pov-character", "", "point-of-view character (defaults to the scene's)")
	fl.StringVar(&f.pov, "pov", "", "point of view, e.g. \"3rd person limited\"")
	fl.StringVar(&f.tense, "tense", "", "tense, e.g. past or present")
	fl.StringVar(&f.prosePromptID, "prompt", "", "prose prompt id (defaults to the project's selection)")
	fl.StringSliceVar(&f.compendiumIDs, "compendium", nil, "compendium entry ids to include")
	fl.StringSliceVar(&f.compendiumTags, "compendium-tag", nil, "include compendium entries with these tags")
	fl.StringToStringVar(&f.chapters, "chapter-context", nil, "chapter id=full|summary")
	fl.StringToStringVar(&f.scenes, "scene-context", nil, "scene id=full|summary")
	fl.StringSliceVar(&f.sceneTags, "scene-tag", nil, "include summaries of scenes with these tags")
	fl.BoolVar(&f.dryRun, "dry-run", false, "discard the generated text instead of keeping it")
	fl.BoolVar(&f.mock, "mock", false, "use the scripted mock backend")
	_ = cmd.MarkFlagRequired("scene")
	_ = cmd.MarkFlagRequired("beat")
	return cmd
}

func runGenerate(ctx context.Context, a *app, out io.Writer, f generateFlags) error {
	sc, err := a.store.Scene(ctx, f.sceneID)
	if err != nil {
		return err
	}
	project, err := a.store.Project(ctx, sc.ProjectID)
	if err != nil {
		return err
	}
	text, err := a.store.SceneText(ctx, sc.ID)
	if err != nil {
		return err
	}
	panel, err := panelFromFlags(f)
	if err != nil {
		return err
	}
	agent, err := a.agent(f.mock)
	if err != nil {
		return err
	}

	ctrl, err := generator.NewController(agent, generator.Scope{ProjectID: sc.ProjectID, SceneID: sc.ID}, text, generator.ControllerConfig{
		HighlightDuration: a.cfg.Generation.HighlightDuration,
		Save: func(ctx context.Context, scope generator.Scope, text string) error {
			_, err := a.store.SaveScene(ctx, scope.SceneID, text)
			return err
		},
		OnToken: func(fragment string) { fmt.Fprint(out, fragment) },
		Log:     a.log.Named("controller"),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	prosePrompt := f.prosePromptID
	if prosePrompt == "" {
		prosePrompt = project.SelectedProsePromptID
	}
	opts := generator.Options{
		POVCharacter:  firstNonEmpty(f.povCharacter, sc.POVCharacter),
		POV:           firstNonEmpty(f.pov, sc.POV),
		Tense:         firstNonEmpty(f.tense, sc.Tense),
		ProsePromptID: prosePrompt,
	}
	req := generator.Request{Beat: f.beat, Panel: panel, Options: opts}
	if err := ctrl.GenerateWith(ctx, req); err != nil {
		fmt.Fprintln(out)
		if msg := ctrl.LastError(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintln(out)

	if f.dryRun {
		return ctrl.Discard(ctx)
	}
	return ctrl.Accept(ctx)
}

func panelFromFlags(f generateFlags) (generator.PanelSelection, error) {
	chapters, err := contextModes(f.chapters)
	if err != nil {
		return generator.PanelSelection{}, err
	}
	scenes, err := contextModes(f.scenes)
	if err != nil {
		return generator.PanelSelection{}, err
	}
	return generator.PanelSelection{
		CompendiumIDs:  f.compendiumIDs,
		CompendiumTags: f.compendiumTags,
		Chapters:       chapters,
		Scenes:         scenes,
		Tags:           f.sceneTags,
	}, nil
}

func contextModes(in map[string]string) (map[string]generator.ContextMode, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]generator.ContextMode, len(in))
	for id, mode := range in {
		switch m := generator.ContextMode(mode); m {
		case generator.ModeFull, generator.ModeSummary:
			out[id] = m
		default:
			return nil, fmt.Errorf("context mode for %s must be full or summary, got %q", id, mode)
		}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
