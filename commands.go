package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"writingway/export"
	"writingway/models"
	"writingway/store"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.CreateProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.store.Projects(cmd.Context())
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout(), "ID", "NAME")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Name)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "normalize PROJECT",
		Short: "Renumber chapter and scene orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.NormalizeOrders(cmd.Context(), args[0])
		},
	})
	return cmd
}

func newChapterCmd(a *app) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{Use: "chapter", Short: "Manage chapters"}
	cmd.PersistentFlags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(&cobra.Command{
		Use:   "create TITLE",
		Short: "Append a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := a.store.CreateChapter(cmd.Context(), projectID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ch.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chapters in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			chapters, err := a.store.Chapters(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout(), "ID", "ORDER", "TITLE")
			for _, ch := range chapters {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", ch.ID, ch.Order, ch.Title)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newSceneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "scene", Short: "Manage scenes"}

	var createProject, createChapter string
	create := &cobra.Command{
		Use:   "create TITLE",
		Short: "Append a scene to a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.store.CreateScene(cmd.Context(), createProject, createChapter, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sc.ID)
			return nil
		},
	}
	create.Flags().StringVar(&createProject, "project", "", "project id")
	create.Flags().StringVar(&createChapter, "chapter", "", "chapter id")
	_ = create.MarkFlagRequired("project")
	_ = create.MarkFlagRequired("chapter")

	var listProject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List scenes in story order",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenes, err := a.store.Scenes(cmd.Context(), listProject)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout(), "ID", "CHAPTER", "WORDS", "STALE", "TITLE")
			for _, sc := range scenes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", sc.ID, sc.ChapterID, sc.WordCount, sc.SummaryStale, sc.Title)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&listProject, "project", "", "project id")
	_ = list.MarkFlagRequired("project")

	show := &cobra.Command{
		Use:   "show SCENE",
		Short: "Print a scene's text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.store.SceneText(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	write := &cobra.Command{
		Use:   "write SCENE FILE",
		Short: "Replace a scene's text with the contents of FILE (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[1] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}
			sc, err := a.store.SaveScene(cmd.Context(), args[0], string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d words\n", sc.WordCount)
			return nil
		},
	}

	var (
		title, summary, pov, povCharacter, tense string
		tags                                     []string
	)
	set := &cobra.Command{
		Use:   "set SCENE",
		Short: "Update scene metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.store.Scene(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("title") {
				sc.Title = title
			}
			if fl.Changed("summary") {
				sc.Summary = summary
				sc.SummaryStale = false
			}
			if fl.Changed("tags") {
				sc.Tags = tags
			}
			if fl.Changed("pov") {
				sc.POV = pov
			}
			if fl.Changed("pov-character") {
				sc.POVCharacter = povCharacter
			}
			if fl.Changed("tense") {
				sc.Tense = tense
			}
			return a.store.UpdateScene(cmd.Context(), sc)
		},
	}
	set.Flags().StringVar(&title, "title", "", "scene title")
	set.Flags().StringVar(&summary, "summary", "", "cached summary used as generation context")
	set.Flags().StringSliceVar(&tags, "tags", nil, "scene tags")
	set.Flags().StringVar(&pov, "pov", "", "default point of view")
	set.Flags().StringVar(&povCharacter, "pov-character", "", "default point-of-view character")
	set.Flags().StringVar(&tense, "tense", "", "default tense")

	cmd.AddCommand(create, list, show, write, set)
	return cmd
}

func newCompendiumCmd(a *app) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{Use: "compendium", Short: "Manage compendium entries"}
	cmd.PersistentFlags().StringVar(&projectID, "project", "", "project id")

	var in store.NewCompendiumEntry
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(in.Tags) > models.MaxCompendiumTags {
				fmt.Fprintf(cmd.ErrOrStderr(), "keeping the first %d tags\n", models.MaxCompendiumTags)
			}
			e, err := a.store.CreateCompendiumEntry(cmd.Context(), projectID, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Title, "title", "", "entry title")
	add.Flags().StringVar(&in.Body, "body", "", "entry text")
	add.Flags().StringVar(&in.Category, "category", "", "category (default "+store.DefaultCompendiumCategory+")")
	add.Flags().StringSliceVar(&in.Tags, "tag", nil, "entry tags")
	_ = add.MarkFlagRequired("title")

	var category, query string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List or search entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				entries []models.CompendiumEntry
				err     error
			)
			switch {
			case category != "":
				entries, err = a.store.CompendiumByCategory(cmd.Context(), projectID, category)
			default:
				entries, err = a.store.SearchCompendium(cmd.Context(), projectID, query, limit)
			}
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			summaries, err := a.store.CompendiumSummaries(cmd.Context(), ids)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout(), "ID", "CATEGORY", "TITLE", "TAGS", "SUMMARY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Category, e.Title,
					strings.Join(e.Tags, ","), oneLine(summaries[e.ID]))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&category, "category", "", "only this category")
	list.Flags().StringVarP(&query, "query", "q", "", "search title, tags and body")
	list.Flags().IntVar(&limit, "limit", 20, "maximum results when searching")

	del := &cobra.Command{
		Use:   "delete ENTRY",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.DeleteCompendiumEntry(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newPromptCmd(a *app) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{Use: "prompt", Short: "Manage prompt templates"}
	cmd.PersistentFlags().StringVar(&projectID, "project", "", "project id")

	var title, content, system, category string
	var selectIt bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.CreatePrompt(cmd.Context(), projectID, category, title)
			if err != nil {
				return err
			}
			p.Content, p.SystemContent = content, system
			if err := a.store.SavePrompt(cmd.Context(), *p); err != nil {
				return err
			}
			if selectIt {
				if err := a.store.SelectProsePrompt(cmd.Context(), projectID, p.ID); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}
	add.Flags().StringVar(&title, "title", "", "template title")
	add.Flags().StringVar(&content, "content", "", "template text")
	add.Flags().StringVar(&system, "system", "", "system message")
	add.Flags().StringVar(&category, "category", models.PromptCategoryProse, "template category")
	add.Flags().BoolVar(&selectIt, "select", false, "make it the project's prose prompt")

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := a.store.Project(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			prompts, err := a.store.Prompts(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			tw := table(cmd.OutOrStdout(), "ID", "CATEGORY", "SELECTED", "TITLE")
			for _, p := range prompts {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", p.ID, p.Category, p.ID == project.SelectedProsePromptID, p.Title)
			}
			return tw.Flush()
		},
	}

	sel := &cobra.Command{
		Use:   "select PROMPT",
		Short: "Select the project's prose prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.SelectProsePrompt(cmd.Context(), projectID, args[0])
		},
	}

	del := &cobra.Command{
		Use:   "delete PROMPT",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.DeletePrompt(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, list, sel, del)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var projectID string
	var showPrompt bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the prompt history of a project, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.store.PromptHistory(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range history {
				fmt.Fprintf(out, "%s  scene=%s  beat=%q\n", h.Timestamp.Format("2006-01-02 15:04:05"), h.SceneID, h.Beat)
				if showPrompt {
					fmt.Fprintf(out, "%s\n", h.Prompt)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().BoolVar(&showPrompt, "prompt", false, "print the full prompt of each entry")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var projectID, outPath string
	var markdown bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a project as a single manuscript",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := export.Manuscript(cmd.Context(), a.store, projectID)
			if err != nil {
				return err
			}
			body := doc.Page()
			if markdown {
				body = doc.Markdown
			}
			if outPath == "" || outPath == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d words)\n", outPath, doc.WordCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "write markdown instead of HTML")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func table(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:60]) + "…"
	}
	return s
}
