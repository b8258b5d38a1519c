package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Mint a fresh session token",
		Args:  cobra.NoArgs,
		RunE:  runSession,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List notes with their lock state",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	getCmd = &cobra.Command{
		Use:   "get [note-id]",
		Short: "Show one note and its lock state",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	createCmd = &cobra.Command{
		Use:   "create [title]",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}

	acquireCmd = &cobra.Command{
		Use:     "acquire [note-id]",
		Aliases: []string{"renew"},
		Short:   "Acquire or renew the edit lock on a note",
		Long: `Acquire the edit lock on a note for the current session, or refresh it
when the session already holds it. "renew" is the same operation.`,
		Args: cobra.ExactArgs(1),
		RunE: runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [note-id]",
		Short: "Release the edit lock on a note",
		Args:  cobra.ExactArgs(1),
		RunE:  runRelease,
	}

	updateCmd = &cobra.Command{
		Use:   "update [note-id]",
		Short: "Edit a note the current session holds the lock for",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
)

func init() {
	listCmd.Flags().Int("limit", 0, "Maximum number of notes to list")
	createCmd.Flags().String("id", "", "Explicit note id (minted when empty)")
	createCmd.Flags().String("body", "", "Note body")
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("body", "", "New body")
}

func runSession(_ *cobra.Command, _ []string) error {
	id, err := newAPIClient().mintSession(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	summaries, err := newAPIClient().listNotes(context.Background(), viper.GetInt("limit"))
	if err != nil {
		return err
	}
	for _, n := range summaries {
		line := fmt.Sprintf("%s\t%s", n.ID, n.Title)
		if n.Locked {
			until := ""
			if n.ExpiresAt != nil {
				until = n.ExpiresAt.Format(time.RFC3339)
			}
			line += fmt.Sprintf("\t[locked by %s until %s]", n.Holder, until)
		}
		fmt.Println(line)
	}
	return nil
}

func runGet(_ *cobra.Command, args []string) error {
	summary, err := newAPIClient().getNote(context.Background(), args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	body, _ := cmd.Flags().GetString("body")
	note, err := newAPIClient().createNote(context.Background(), id, args[0], body)
	if err != nil {
		return err
	}
	fmt.Println(note.ID)
	return nil
}

func runAcquire(_ *cobra.Command, args []string) error {
	reply, err := newAPIClient().acquire(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !reply.Granted {
		fmt.Printf("acquired=false holder=%s expires_at=%s\n", reply.Denial.Holder, reply.Denial.ExpiresAt)
		return nil
	}
	fmt.Printf("acquired=true outcome=%s expires_at=%s\n",
		reply.Acq.Outcome, reply.Acq.Lock.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runRelease(_ *cobra.Command, args []string) error {
	reply, err := newAPIClient().release(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !reply.Released {
		fmt.Printf("released=false holder=%s expires_at=%s\n", reply.Denial.Holder, reply.Denial.ExpiresAt)
		return nil
	}
	fmt.Println("released=true")
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var title, body *string
	if cmd.Flags().Changed("title") {
		v, _ := cmd.Flags().GetString("title")
		title = &v
	}
	if cmd.Flags().Changed("body") {
		v, _ := cmd.Flags().GetString("body")
		body = &v
	}
	if title == nil && body == nil {
		return fmt.Errorf("nothing to update: pass --title and/or --body")
	}
	reply, err := newAPIClient().update(context.Background(), args[0], title, body)
	if err != nil {
		return err
	}
	if !reply.Updated {
		fmt.Printf("updated=false holder=%s expires_at=%s\n", reply.Denial.Holder, reply.Denial.ExpiresAt)
		return nil
	}
	fmt.Printf("updated=true id=%s\n", reply.Note.ID)
	return nil
}
