package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pathways/internal/account"
	"pathways/internal/apiclient"
	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/config"
	"pathways/internal/localstore"
	"pathways/internal/logger"
	"pathways/internal/onboarding"
)

// journey is what every client command works with: a restored session
// manager plus the raw API client for read-only service calls.
type journey struct {
	mgr    *account.Manager
	client *apiclient.Client
	local  *localstore.Store
	log    *zap.Logger
	cat    *catalog.Catalog
}

func (j *journey) close() {
	if err := j.local.Close(); err != nil {
		j.log.Warn("close local store", zap.Error(err))
	}
	j.log.Sync()
}

// openJourney loads client settings, opens the local cache and restores any
// cached session.
func openJourney(cmd *cobra.Command) (*journey, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if dbFlag, _ := cmd.Flags().GetString("db"); dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if apiFlag, _ := cmd.Flags().GetString("api"); apiFlag != "" {
		cfg.APIURL = strings.TrimRight(apiFlag, "/")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	path := cfg.DBPath
	if path == "" {
		if path, err = localstore.DefaultPath(); err != nil {
			return nil, err
		}
	}
	local, err := localstore.Open(path)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Default()
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	client := apiclient.New(cfg.APIURL, cfg.Timeout, log)
	j := &journey{
		mgr:    account.NewManager(client, local, cat, log),
		client: client,
		local:  local,
		log:    log,
		cat:    cat,
	}
	if _, err := j.mgr.Restore(cmd.Context()); err != nil {
		j.close()
		return nil, err
	}
	return j, nil
}

// withJourney adapts a journey action to a cobra RunE.
func withJourney(fn func(ctx context.Context, cmd *cobra.Command, j *journey, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		j, err := openJourney(cmd)
		if err != nil {
			return err
		}
		defer j.close()
		return explain(fn(cmd.Context(), cmd, j, args))
	}
}

// explain turns domain errors into the short message a person should see.
func explain(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindState:
		return errors.New("not signed in: run `pathways journey login` first")
	case apperr.KindNetwork:
		return fmt.Errorf("could not reach the Pathways service: %w", err)
	case apperr.KindUnknown:
		return err
	}
	return errors.New(apperr.MessageOf(err))
}

func newJourneyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journey",
		Short: "Walk through the parent journey from the terminal",
	}
	cmd.PersistentFlags().String("db", "", "local cache file (overrides PATHWAYS_DB)")
	cmd.PersistentFlags().String("api", "", "account service base URL (overrides PATHWAYS_API_URL)")

	cmd.AddCommand(
		newRegisterCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newProfileCmd(),
		newPasswordCmd(),
		newQuestionsCmd(),
		newOnboardCmd(),
		newOnboardingCmd(),
		newStagesCmd(),
		newMilestonesCmd(),
		newToggleCmd(),
		newProgressCmd(),
		newResetCmd(),
		newHistoryCmd(),
		newResourcesCmd(),
	)
	return cmd
}

// secret returns the flag value, or reads one line from stdin.
func secret(cmd *cobra.Command, flag, prompt string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", flag, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func optional(cmd *cobra.Command, flag string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v, _ := cmd.Flags().GetString(flag)
	return &v
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, err := secret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			sess, err := j.mgr.Register(ctx, email, password, optional(cmd, "name"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s.\n", sess.User.DisplayName())
			printRecommendation(cmd.OutOrStdout(), j.cat, sess.User.RecommendedStageID)
			return nil
		}),
	}
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an existing account",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, err := secret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			sess, err := j.mgr.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", sess.User.DisplayName())
			return nil
		}),
	}
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the local cache",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			if err := j.mgr.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		}),
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			sess, err := j.mgr.Current()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			u := sess.User
			fmt.Fprintf(out, "%s <%s>\n", u.DisplayName(), u.Email)
			fmt.Fprintf(out, "Member since %s\n", u.CreatedAt.Format("January 2, 2006"))
			fmt.Fprintf(out, "Milestones completed: %d\n", len(u.CompletedMilestones))
			printRecommendation(out, j.cat, u.RecommendedStageID)
			return nil
		}),
	}
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change name, email or recommended stage",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			upd := account.ProfileUpdate{
				Name:  optional(cmd, "name"),
				Email: optional(cmd, "email"),
			}
			if s := optional(cmd, "stage"); s != nil {
				id := catalog.StageID(*s)
				upd.RecommendedStageID = &id
			}
			sess, err := j.mgr.UpdateProfile(ctx, upd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile saved for %s <%s>.\n", sess.User.DisplayName(), sess.User.Email)
			return nil
		}),
	}
	cmd.Flags().String("name", "", "new display name")
	cmd.Flags().String("email", "", "new email address")
	cmd.Flags().String("stage", "", "stage id to focus on (s1..s5)")
	return cmd
}

func newPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the account password",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			sess, err := j.mgr.Current()
			if err != nil {
				return err
			}
			current, err := secret(cmd, "current", "Current password: ")
			if err != nil {
				return err
			}
			next, err := secret(cmd, "new", "New password: ")
			if err != nil {
				return err
			}
			if len(next) < account.MinPasswordLength {
				return apperr.Validation("password", "password must be at least 8 characters")
			}
			if err := j.client.ChangePassword(ctx, sess.Token, current, next); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed. Other devices have been signed out.")
			return nil
		}),
	}
	cmd.Flags().String("current", "", "current password (prompted when omitted)")
	cmd.Flags().String("new", "", "new password (prompted when omitted)")
	return cmd
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List the onboarding questions and their answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, q := range onboarding.Questions() {
				fmt.Fprintf(out, "%s (--%s)\n", q.Prompt, q.ID)
				for _, o := range q.Options {
					fmt.Fprintf(out, "  %-14s %s\n", o.Value, o.Label)
				}
			}
			return nil
		},
	}
}

func newOnboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Answer the questionnaire and get a recommended starting stage",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			age, _ := cmd.Flags().GetString("age")
			diagnosis, _ := cmd.Flags().GetString("diagnosis")
			concern, _ := cmd.Flags().GetString("concern")

			answers, err := onboarding.ParseAnswers(age, diagnosis, concern)
			if err != nil {
				return err
			}
			stage, err := j.mgr.ApplyAnswers(ctx, answers)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printRecommendation(out, j.cat, &stage)
			if !j.mgr.SignedIn() {
				fmt.Fprintln(out, "Your answers will be saved when you register or sign in.")
			}
			return nil
		}),
	}
	cmd.Flags().String("age", "", "child age range (see `journey questions`)")
	cmd.Flags().String("diagnosis", "", "diagnosis status")
	cmd.Flags().String("concern", "", "primary concern")
	cmd.MarkFlagRequired("age")
	cmd.MarkFlagRequired("diagnosis")
	cmd.MarkFlagRequired("concern")
	return cmd
}

func newOnboardingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboarding",
		Short: "Show the questionnaire answers on file",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			sess, err := j.mgr.Current()
			if err != nil {
				return err
			}
			resp, err := j.client.LatestOnboarding(ctx, sess.Token)
			if apperr.IsNotFound(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No questionnaire on file yet. Run `pathways journey onboard`.")
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Answered %s\n", resp.CreatedAt.Local().Format("January 2, 2006"))
			fmt.Fprintf(out, "  Child age:  %s\n", optionLabel(onboarding.QuestionAge, string(resp.ChildAge)))
			fmt.Fprintf(out, "  Diagnosis:  %s\n", optionLabel(onboarding.QuestionDiagnosis, string(resp.Diagnosis)))
			fmt.Fprintf(out, "  Concern:    %s\n", optionLabel(onboarding.QuestionConcern, string(resp.Concern)))
			stage := resp.RecommendedStageID
			printRecommendation(out, j.cat, &stage)
			return nil
		}),
	}
}

// optionLabel returns the label shown for an answer value.
func optionLabel(questionID, value string) string {
	for _, q := range onboarding.Questions() {
		if q.ID != questionID {
			continue
		}
		for _, o := range q.Options {
			if o.Value == value {
				return o.Label
			}
		}
	}
	return value
}

func printRecommendation(out io.Writer, cat *catalog.Catalog, id *catalog.StageID) {
	if id == nil {
		return
	}
	s, ok := cat.Stage(*id)
	if !ok {
		return
	}
	fmt.Fprintf(out, "Recommended stage: %s (%s, %s)\n", s.Title, s.ID, s.AgeRange)
	if s.NextStepPrompt != "" {
		fmt.Fprintf(out, "Next step: %s\n", s.NextStepPrompt)
	}
}

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the journey stages",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			var completed []string
			if sess, err := j.mgr.Current(); err == nil {
				completed = sess.User.CompletedMilestones
			}
			stages, err := j.stages(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTAGE\tAGES\tDONE")
			for _, s := range stages {
				done := 0
				for _, m := range j.cat.MilestonesForStage(s.ID) {
					if contains(completed, m.ID) {
						done++
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", s.ID, s.Title, s.AgeRange, done, j.cat.MilestoneCount(s.ID))
			}
			return w.Flush()
		}),
	}
}

func newMilestonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List milestones, optionally for one stage",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			stage, _ := cmd.Flags().GetString("stage")
			verbose, _ := cmd.Flags().GetBool("verbose")

			list := j.cat.Milestones()
			if stage != "" {
				if !j.cat.HasStage(catalog.StageID(stage)) {
					return apperr.NotFound("milestones", "stage "+stage+" not found")
				}
				list = j.cat.MilestonesForStage(catalog.StageID(stage))
			}

			var completed []string
			if sess, err := j.mgr.Current(); err == nil {
				completed = sess.User.CompletedMilestones
			}

			out := cmd.OutOrStdout()
			for _, m := range list {
				mark := " "
				if contains(completed, m.ID) {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %-6s %s\n", mark, m.ID, m.Title)
				if verbose {
					fmt.Fprintf(out, "       What to look for: %s\n", m.Behavior)
					fmt.Fprintf(out, "       Why it matters:   %s\n", m.WhyItMatters)
					fmt.Fprintf(out, "       If not yet:       %s\n", m.IfNotYet)
				}
			}
			return nil
		}),
	}
	cmd.Flags().String("stage", "", "stage id (s1..s5)")
	cmd.Flags().BoolP("verbose", "v", false, "show guidance for each milestone")
	return cmd
}

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <milestone-id>",
		Short: "Mark a milestone done, or undo it",
		Args:  cobra.ExactArgs(1),
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, args []string) error {
			done, err := j.mgr.ToggleMilestone(ctx, args[0])
			if err != nil {
				return err
			}
			m, _ := j.cat.Milestone(args[0])
			out := cmd.OutOrStdout()
			if done {
				fmt.Fprintf(out, "Done: %s\n", m.Title)
				if m.Reassurance != "" {
					fmt.Fprintln(out, m.Reassurance)
				}
				return nil
			}
			fmt.Fprintf(out, "Marked not yet: %s\n", m.Title)
			return nil
		}),
	}
}

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show completion per stage",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			rep, err := j.mgr.Progress()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range rep.Stages {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%3d%%\n", s.StageID, s.Title, s.Completed, s.Total, s.Percent)
			}
			fmt.Fprintf(w, "\tOverall\t%d/%d\t%3d%%\n", rep.TotalCompleted, rep.TotalMilestones, rep.Percent)
			return w.Flush()
		}),
	}
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every completed milestone",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("this clears your whole checklist; pass --yes to confirm")
			}
			if _, err := j.mgr.ResetProgress(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Checklist cleared.")
			return nil
		}),
	}
	cmd.Flags().Bool("yes", false, "confirm the reset")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent checklist changes",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			sess, err := j.mgr.Current()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := j.client.History(ctx, sess.Token, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes yet.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				what := e.MilestoneID
				if what == "" {
					what = "whole checklist"
				}
				if m, ok := j.cat.Milestone(e.MilestoneID); ok {
					what = m.Title
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d done\n",
					e.Timestamp.Local().Format("2006-01-02 15:04"), e.Action, what, len(e.CompletedMilestoneIDs))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().Int("limit", 20, "number of entries")
	return cmd
}

func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Browse the resource directory",
		RunE: withJourney(func(ctx context.Context, cmd *cobra.Command, j *journey, _ []string) error {
			category, _ := cmd.Flags().GetString("category")
			search, _ := cmd.Flags().GetString("search")
			f := catalog.ResourceFilter{Category: catalog.Category(category), Search: search}
			if f.Category != "" && !f.Category.Valid() {
				return apperr.Validation("resources", "unknown category "+category)
			}

			list, err := j.resources(ctx, f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range list {
				fmt.Fprintf(out, "%s [%s]\n  %s\n  %s\n", r.Title, r.Category, r.Description, r.URL)
			}
			return nil
		}),
	}
	cmd.Flags().String("category", "", "one of: Early Intervention, Diagnosis, Insurance, IEP, Therapy, General")
	cmd.Flags().String("search", "", "text to look for in title, description and tags")
	return cmd
}

// stages lists stages from the service. When the service cannot be reached
// the built-in catalog is shown instead.
func (j *journey) stages(ctx context.Context, notice io.Writer) ([]catalog.Stage, error) {
	list, err := j.client.Stages(ctx)
	if err == nil {
		return list, nil
	}
	if !apperr.IsNetwork(err) {
		return nil, err
	}
	j.log.Debug("list stages offline", zap.Error(err))
	fmt.Fprintln(notice, "Offline: showing the built-in catalog.")
	return j.cat.Stages(), nil
}

// resources filters the directory on the service, or locally when offline.
func (j *journey) resources(ctx context.Context, f catalog.ResourceFilter, notice io.Writer) ([]catalog.Resource, error) {
	list, err := j.client.Resources(ctx, f)
	if err == nil {
		return list, nil
	}
	if !apperr.IsNetwork(err) {
		return nil, err
	}
	j.log.Debug("list resources offline", zap.Error(err))
	fmt.Fprintln(notice, "Offline: showing the built-in catalog.")
	return j.cat.Resources(f), nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
