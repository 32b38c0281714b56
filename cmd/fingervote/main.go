// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/coordinator"
	"github.com/danielhkuo/fingervote/identity"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/models"
	"github.com/danielhkuo/fingervote/tally"
)

// Exit codes
const (
	exitOK           = 0
	exitError        = 1
	exitUsage        = 2
	exitAlreadyVoted = 3
)

const usage = `usage: fingervote [flags] <command> [args]

commands:
  participants            list the roster with current tallies
  status                  show whether this profile has voted
  vote [-yes] <id>        scan and cast this profile's one vote
  watch                   follow tallies and the leader live
  admin <subcommand>      manage the roster (login, logout, whoami, add, update, delete)

flags:
  -api URL                ledger server (FINGERVOTE_API, default http://localhost:3318)
  -profile NAME           local voter profile (FINGERVOTE_PROFILE, default "default")
  -tally-interval DUR     tally poll interval for watch
  -leader-interval DUR    leader poll interval for watch
`

type app struct {
	cfg     cliparse.ClientConfig
	backend *ledger.HTTPBackend
	client  *ledger.Client
	ident   *identity.Store
	in      *bufio.Reader
	out     io.Writer
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	cfg, rest, err := cliparse.ParseClientFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stdout, usage)
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stdout, "error:", err)
		return exitUsage
	}
	if len(rest) == 0 {
		fmt.Fprint(stdout, usage)
		return exitUsage
	}

	path, err := identity.DefaultProfilePath(cfg.Profile)
	if err != nil {
		fmt.Fprintln(stdout, "error:", err)
		return exitUsage
	}

	backend := ledger.NewHTTPBackend(cfg.APIURL, http.DefaultClient)
	a := &app{
		cfg:     cfg,
		backend: backend,
		client:  ledger.NewClient(backend),
		ident:   identity.NewStore(identity.NewFileKV(path)),
		in:      bufio.NewReader(stdin),
		out:     stdout,
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "participants", "ls":
		err = a.participants(ctx)
	case "status":
		err = a.status(ctx)
	case "vote":
		return a.vote(ctx, cmdArgs)
	case "watch":
		err = a.watch(ctx)
	case "admin":
		err = a.admin(ctx, cmdArgs)
	case "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stdout, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	if err != nil {
		fmt.Fprintln(stdout, "error:", err)
		return exitError
	}
	return exitOK
}

func (a *app) participants(ctx context.Context) error {
	roster, err := a.client.ListParticipants(ctx)
	if err != nil {
		return err
	}
	tallies, err := a.client.FetchTallies(ctx)
	if err != nil {
		return err
	}

	if len(roster) == 0 {
		fmt.Fprintln(a.out, "No participants yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOUNTRY\tAGE\tVOTES\tADDED")
	for _, p := range roster {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Country, p.Age, humanize.Comma(tallies[p.ID]), humanize.Time(p.CreatedAt))
	}
	return tw.Flush()
}

// newReconciler builds and initializes the voter's projection
func (a *app) newReconciler(ctx context.Context) (*tally.Reconciler, error) {
	rec := tally.NewReconciler(a.client, a.ident, tally.Config{
		TallyInterval:  a.cfg.TallyInterval,
		LeaderInterval: a.cfg.LeaderInterval,
	})
	if err := rec.Initialize(ctx); err != nil {
		rec.Close()
		return nil, err
	}
	return rec, nil
}

func (a *app) status(ctx context.Context) error {
	rec, err := a.newReconciler(ctx)
	if err != nil {
		return err
	}
	defer rec.Close()

	token, err := a.ident.GetOrCreate()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "profile:  %s\n", a.cfg.Profile)
	fmt.Fprintf(a.out, "voter id: %s\n", shortToken(token))
	if a.ident.Ephemeral() {
		fmt.Fprintln(a.out, "warning:  profile storage is unavailable; this identity lasts only for this run")
	}

	snap := rec.Snapshot()
	if snap.HasVoted {
		fmt.Fprintf(a.out, "status:   voted for %s\n", displayName(snap.Participants, snap.VotedFor))
	} else {
		fmt.Fprintln(a.out, "status:   not voted")
	}
	printLeader(a.out, snap)
	return nil
}

func (a *app) vote(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("vote", flag.ContinueOnError)
	fs.SetOutput(a.out)
	yes := fs.Bool("yes", false, "Skip the scan prompt")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.out, "usage: fingervote vote [-yes] <participant-id>")
		return exitUsage
	}
	participantID := fs.Arg(0)

	rec, err := a.newReconciler(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return exitError
	}
	defer rec.Close()

	roster := rec.Snapshot().Participants
	notify := coordinator.NotifierFunc(func(kind coordinator.NoticeKind, message string) {
		fmt.Fprintln(a.out, message)
	})
	coord := coordinator.New(a.client, rec, a.ident, notify)

	err = coord.Stage(participantID)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyVoted):
		fmt.Fprintf(a.out, "You have already voted for %s.\n", displayName(roster, rec.VotedFor()))
		return exitAlreadyVoted
	case err != nil:
		fmt.Fprintln(a.out, "error:", err)
		return exitError
	}

	if !*yes {
		fmt.Fprintf(a.out, "Voting for %s. Place your finger on the sensor and press Enter (or type cancel): ",
			displayName(roster, participantID))
		line, err := a.in.ReadString('\n')
		if (err != nil && line == "") || strings.EqualFold(strings.TrimSpace(line), "cancel") {
			coord.Cancel()
			fmt.Fprintln(a.out, "\nVote cancelled.")
			return exitOK
		}
	}

	out, err := coord.Confirm(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return exitError
	}

	switch out.Result {
	case coordinator.Success:
		// The optimistic write leaves the leader alone until a full refresh
		if err := rec.RefreshLeader(ctx); err != nil {
			slog.Debug("leader refresh after vote failed", "error", err)
			n := rec.Tallies()[participantID]
			fmt.Fprintf(a.out, "%s now has %s %s.\n", displayName(roster, participantID), humanize.Comma(n), pluralVotes(n))
			return exitOK
		}
		printLeader(a.out, rec.Snapshot())
		return exitOK
	case coordinator.Duplicate:
		return exitAlreadyVoted
	default:
		return exitError
	}
}

func (a *app) watch(ctx context.Context) error {
	rec, err := a.newReconciler(ctx)
	if err != nil {
		return err
	}
	defer rec.Close()

	// Polling keeps the view current while the stream reconnects
	push := streamVotes(ctx, a.backend.SubscribeVotes, streamBackoffMin, streamBackoffMax)

	updates, cancel := rec.Subscribe()
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(ctx, push) }()

	printSnapshot(a.out, rec.Snapshot())
	for {
		select {
		case <-ctx.Done():
			<-runErr
			return nil
		case err := <-runErr:
			return err
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(a.out, snap)
		}
	}
}

func printSnapshot(w io.Writer, snap tally.Snapshot) {
	fmt.Fprintln(w, "----")
	printLeader(w, snap)

	ids := make([]string, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		ids = append(ids, p.ID)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return snap.Tallies[ids[i]] > snap.Tallies[ids[j]]
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range ids {
		mark := ""
		if snap.HasVoted && id == snap.VotedFor {
			mark = "  (your vote)"
		}
		fmt.Fprintf(tw, "%s\t%s%s\n", displayName(snap.Participants, id), humanize.Comma(snap.Tallies[id]), mark)
	}
	tw.Flush()
}

func printLeader(w io.Writer, snap tally.Snapshot) {
	if snap.Leader == nil {
		fmt.Fprintln(w, "leader:   none yet")
		return
	}
	tie := ""
	if snap.Leader.Tied {
		tie = ", tied"
	}
	fmt.Fprintf(w, "leader:   %s (%s %s%s)\n",
		displayName(snap.Participants, snap.Leader.ParticipantID),
		humanize.Comma(snap.Leader.Count),
		pluralVotes(snap.Leader.Count), tie)
}

func pluralVotes(n int64) string {
	if n == 1 {
		return "vote"
	}
	return "votes"
}

func displayName(roster []models.Participant, id string) string {
	if id == "" {
		return "an unknown participant"
	}
	for _, p := range roster {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
