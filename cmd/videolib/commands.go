package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/library"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

func (s *session) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("videolib "+name, flag.ContinueOnError)
	fs.SetOutput(s.errOut)
	return fs
}

// parse parses args and requires exactly want positional arguments
func parse(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if fs.NArg() != want {
		return nil, errUsage
	}
	return fs.Args(), nil
}

func (s *session) printJSON(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s *session) printVideos(videos []*models.Video) error {
	if s.json {
		return s.printJSON(videos)
	}
	if len(videos) == 0 {
		_, err := fmt.Fprintln(s.out, "No videos")
		return err
	}

	currentID := ""
	if cur := s.engine.State().CurrentVideo; cur != nil {
		currentID = cur.ID
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTITLE\tCATEGORY\tTYPE\tADDED")
	for _, v := range videos {
		marker := ""
		if v.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, v.ID, v.Title, v.CategoryOrDefault(), v.Type, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (s *session) printVideo(v *models.Video) error {
	if s.json {
		return s.printJSON(v)
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", v.Title)
	fmt.Fprintf(tw, "Category:\t%s\n", v.CategoryOrDefault())
	fmt.Fprintf(tw, "Type:\t%s\n", v.Type)
	fmt.Fprintf(tw, "Embed URL:\t%s\n", v.EmbedURL)
	if v.Duration != "" {
		fmt.Fprintf(tw, "Duration:\t%s\n", v.Duration)
	}
	if v.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", v.Description)
	}
	if played, ok := v.Metadata[models.MetaLastPlayed].(string); ok {
		fmt.Fprintf(tw, "Last played:\t%s\n", played)
	}
	return tw.Flush()
}

func runList(_ context.Context, s *session, args []string) error {
	fs := s.flags("list")
	category := fs.String("category", models.AllCategories, "Only show this category")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	s.engine.FilterVideosByCategory(*category)
	return s.printVideos(s.engine.GetFilteredVideos())
}

func runAdd(ctx context.Context, s *session, args []string) error {
	fs := s.flags("add")
	title := fs.String("title", "", "Title override")
	category := fs.String("category", "", "Category, General when empty")

	// Accept the URL before or after the flags
	var url string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		url, args = args[0], args[1:]
	}
	rest, err := parse(fs, args, boolToInt(url == ""))
	if err != nil {
		return err
	}
	if url == "" {
		url = rest[0]
	}

	saved, err := s.engine.AddVideo(ctx, url, *title, *category)
	if err != nil {
		return err
	}
	if s.json {
		return s.printJSON(saved)
	}
	_, err = fmt.Fprintf(s.out, "Added %s (%s)\n", saved.Title, saved.ID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *session) find(id string) (*models.Video, error) {
	for _, v := range s.engine.State().Videos {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, fmt.Errorf("no video with id %q", id)
}

func runSelect(ctx context.Context, s *session, args []string) error {
	rest, err := parse(s.flags("select"), args, 1)
	if err != nil {
		return err
	}
	v, err := s.find(rest[0])
	if err != nil {
		return err
	}

	s.engine.SelectVideo(ctx, v)
	if s.json {
		return s.printJSON(v)
	}
	_, err = fmt.Fprintf(s.out, "Now playing %s\n", v.Title)
	return err
}

func runCurrent(_ context.Context, s *session, args []string) error {
	if _, err := parse(s.flags("current"), args, 0); err != nil {
		return err
	}

	current := s.engine.State().CurrentVideo
	if current == nil {
		if s.json {
			return s.printJSON(nil)
		}
		_, err := fmt.Fprintln(s.out, "No video selected")
		return err
	}
	return s.printVideo(current)
}

func runClear(ctx context.Context, s *session, args []string) error {
	if _, err := parse(s.flags("clear"), args, 0); err != nil {
		return err
	}
	s.engine.ClearCurrentVideo(ctx)
	_, err := fmt.Fprintln(s.out, "Selection cleared")
	return err
}

func runRemove(ctx context.Context, s *session, args []string) error {
	rest, err := parse(s.flags("remove"), args, 1)
	if err != nil {
		return err
	}
	if err := s.engine.RemoveVideo(ctx, rest[0]); err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.out, "Removed %s\n", rest[0])
	return err
}

func runUpdate(ctx context.Context, s *session, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errUsage
	}
	id, args := args[0], args[1:]

	fs := s.flags("update")
	title := fs.String("title", "", "New title")
	category := fs.String("category", "", "New category")
	description := fs.String("description", "", "New description")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	// Only flags given on the command line become part of the patch
	var patch models.VideoPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
		case "category":
			patch.Category = category
		case "description":
			patch.Description = description
		}
	})

	updated, err := s.engine.UpdateVideo(ctx, id, patch)
	if err != nil {
		return err
	}
	return s.printVideo(updated)
}

func runSearch(ctx context.Context, s *session, args []string) error {
	fs := s.flags("search")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}

	results, err := s.engine.SearchVideos(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	return s.printVideos(results)
}

func runCategories(_ context.Context, s *session, args []string) error {
	if _, err := parse(s.flags("categories"), args, 0); err != nil {
		return err
	}

	categories := s.engine.State().Categories
	if s.json {
		return s.printJSON(categories)
	}
	_, err := fmt.Fprintln(s.out, strings.Join(categories, "\n"))
	return err
}

func runStats(_ context.Context, s *session, args []string) error {
	if _, err := parse(s.flags("stats"), args, 0); err != nil {
		return err
	}

	stats := s.engine.GetVideoStats()
	if s.json {
		return s.printJSON(stats)
	}

	names := make([]string, 0, len(stats.ByCategory))
	for name := range stats.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total:\t%d\n", stats.Total)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s:\t%d\n", name, stats.ByCategory[name])
	}
	fmt.Fprintf(tw, "Current video:\t%s\n", yesNo(stats.HasCurrent))
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// watchLine summarizes the parts of a state that a terminal user follows
func watchLine(st library.State) string {
	current := "none"
	if st.CurrentVideo != nil {
		current = st.CurrentVideo.Title
	}
	line := fmt.Sprintf("videos=%d current=%q syncing=%t", len(st.Videos), current, st.IsSyncing)
	if st.Error != "" {
		line += fmt.Sprintf(" error=%q", st.Error)
	}
	return line
}

func runWatch(ctx context.Context, s *session, args []string) error {
	if _, err := parse(s.flags("watch"), args, 0); err != nil {
		return err
	}

	// Only the newest snapshot matters; changed wakes the loop to print it
	latest := newLatestState(s.engine.State())
	changed := make(chan struct{}, 1)
	cancel := s.engine.OnChange(func(st library.State) {
		if latest.offer(st) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	printLine := func(w io.Writer, line string) {
		fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05"), line)
	}

	last := watchLine(latest.get())
	printLine(s.out, last)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			line := watchLine(latest.get())
			if line == last {
				continue
			}
			last = line
			printLine(s.out, line)
		}
	}
}

// latestState keeps the snapshot with the highest version seen
type latestState struct {
	mu    sync.Mutex
	state library.State
}

func newLatestState(st library.State) *latestState {
	return &latestState{state: st}
}

// offer stores st if it is newer and reports whether it was stored
func (l *latestState) offer(st library.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st.Version <= l.state.Version {
		return false
	}
	l.state = st
	return true
}

func (l *latestState) get() library.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
