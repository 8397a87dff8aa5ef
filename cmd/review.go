package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/review"
)

// ReviewCommand returns the review command.
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "Review a pull/merge request",
		ArgsUsage: "PR_URL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Run the review without posting a comment",
			},
			&cli.BoolFlag{
				Name:  "post",
				Usage: "Post the synthesized review as a PR comment",
			},
		},
		Action: runReview,
	}
}

func runReview(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: PR URL")
	}
	url := c.Args().Get(0)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("post") {
		cfg.Review.PostComments = true
	}
	if c.Bool("dry-run") {
		cfg.Review.PostComments = false
	}

	svc, cleanup, err := review.NewFromConfig(c.Context, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.Run(c.Context, url)
	if report != nil {
		fmt.Println(review.FormatText(report))
	}
	return err
}
