// Command mdlgrade synchronizes a local work tree with a Moodle instance for
// offline grading: pull submissions, grade them in editable grading files,
// push the grades back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/config"
	"github.com/noah-isme/mdlgrade/internal/merge"
	"github.com/noah-isme/mdlgrade/internal/moodle"
	"github.com/noah-isme/mdlgrade/internal/report"
	"github.com/noah-isme/mdlgrade/internal/service"
	"github.com/noah-isme/mdlgrade/internal/store"
)

const usage = `usage: mdlgrade <command> [flags]

commands:
  init     initialize a work tree and write its configuration
  sync     fetch and merge courses, assignments, submissions and grades
  status   show which assignments need grading
  pull     download submission files for assignments that need grading
  grading  generate grading files and merged submission documents
  upload   push the grades of an edited grading file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "sync":
		err = runSync(ctx, os.Args[2:], logger)
	case "status":
		err = runStatus(os.Args[2:])
	case "pull":
		err = runPull(ctx, os.Args[2:], logger)
	case "grading":
		err = runGrading(os.Args[2:])
	case "upload":
		err = runUpload(ctx, os.Args[2:], logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func rootFlag(fs *flag.FlagSet) *string {
	return fs.String("C", ".", "work tree root directory")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	root := rootFlag(fs)
	url := fs.String("url", "", "Moodle service base URL")
	token := fs.String("token", "", "webservice token")
	userID := fs.Int("user", 0, "numeric user id of the grader")
	courses := fs.String("courses", "", "comma separated course ids to grade")
	if err := fs.Parse(args); err != nil {
		return err
	}

	courseIDs, err := parseIDs(*courses)
	if err != nil {
		return fmt.Errorf("invalid -courses: %w", err)
	}

	if _, err := store.Open(*root); err != nil {
		return err
	}
	cfg := config.Config{
		ServiceURL: *url,
		Token:      *token,
		UserID:     *userID,
		CourseIDs:  courseIDs,
	}
	if err := config.Write(*root, cfg); err != nil {
		return err
	}
	fmt.Printf("initialized work tree at %s\n", *root)
	return nil
}

func runSync(ctx context.Context, args []string, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	root := rootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, tree, err := open(*root)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	engine := merge.NewEngine(tree, logger)
	sync := service.NewSyncService(client, engine, tree, cfg.UserID, cfg.CourseIDs, logger)
	result, err := sync.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("courses: %d, users: %d\n", result.Courses, result.Users)
	fmt.Printf("assignments: %s\n", result.Assignments)
	fmt.Printf("submissions: %s\n", result.Submissions)
	fmt.Printf("grades: %s\n", result.Grades)
	for _, warning := range result.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	root := rootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, tree, err := open(*root)
	if err != nil {
		return err
	}
	courses, err := report.BuildCourses(tree, cfg.CourseIDs)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, course := range courses {
		for _, line := range course.StatusLines(now) {
			fmt.Println(line)
		}
	}
	return nil
}

func runPull(ctx context.Context, args []string, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	root := rootFlag(fs)
	dir := fs.String("dir", "submissions", "target directory for downloaded files")
	all := fs.Bool("all", false, "pull every assignment, not only those needing grading")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, tree, err := open(*root)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	courses, err := report.BuildCourses(tree, cfg.CourseIDs)
	if err != nil {
		return err
	}

	now := time.Now()
	var assignments []*report.Assignment
	for _, course := range courses {
		for _, a := range course.Assignments {
			if *all || a.NeedsGrading(now) {
				assignments = append(assignments, a)
			}
		}
	}

	downloads := service.NewDownloadService(client, cfg.Workers, cfg.TaskTimeout, logger)
	items := downloads.Plan(*dir, assignments)
	if len(items) == 0 {
		fmt.Println("nothing to pull")
		return nil
	}

	result := downloads.Fetch(ctx, items)
	fmt.Printf("fetched %d of %d files\n", result.Fetched, len(items))
	for _, err := range result.Errors {
		fmt.Printf("failed: %v\n", err)
	}
	return nil
}

func runGrading(args []string) error {
	fs := flag.NewFlagSet("grading", flag.ExitOnError)
	root := rootFlag(fs)
	dir := fs.String("dir", ".", "target directory for grading files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, tree, err := open(*root)
	if err != nil {
		return err
	}
	courses, err := report.BuildCourses(tree, cfg.CourseIDs)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, course := range courses {
		for _, a := range course.Assignments {
			if !a.NeedsGrading(now) {
				continue
			}

			path, err := report.NewGradingFile(a).Write(*dir)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)

			htmlPath, err := report.WriteMergedHTML(*dir, a)
			if err != nil {
				return err
			}
			if htmlPath != "" {
				fmt.Printf("wrote %s\n", htmlPath)
			}
		}
	}
	return nil
}

func runUpload(ctx context.Context, args []string, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	root := rootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: mdlgrade upload <grading file>...")
	}

	cfg, tree, err := open(*root)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	courses, err := report.BuildCourses(tree, cfg.CourseIDs)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	uploads := service.NewUploadService(client, validate, cfg.Workers, cfg.TaskTimeout, logger)

	for _, path := range fs.Args() {
		result, err := uploads.Upload(ctx, courses, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: saved %d grades\n", path, result.Saved)
		for _, err := range result.Errors {
			fmt.Printf("failed: %v\n", err)
		}
	}
	return nil
}

func open(root string) (config.Config, *store.WorkTree, error) {
	if !store.Exists(root) {
		return config.Config{}, nil, fmt.Errorf("%s is not a work tree, run init first", root)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, nil, err
	}
	tree, err := store.Open(root)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, tree, nil
}

func newClient(cfg config.Config, logger zerolog.Logger) (*moodle.Client, error) {
	return moodle.NewClient(moodle.Config{
		BaseURL: cfg.ServiceURL,
		Token:   cfg.Token,
		Timeout: cfg.TaskTimeout,
	}, logger)
}

func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
