package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage-assistant/internal/chat"
)

func askCmd() *cobra.Command {
	var personaName, imagePath string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message to a fresh chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			persona, err := chat.ParsePersona(personaName)
			if err != nil {
				return fmt.Errorf("%w: %q", err, personaName)
			}
			img, err := readImage(imagePath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.Chat.CreateSession(ctx, persona)
			if err != nil {
				return err
			}
			session, err = a.Chat.Send(ctx, session.ID, args[0], img)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.Messages[len(session.Messages)-1].Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&personaName, "persona", "p", string(chat.PersonaCompanion), "companion or assistant")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "optional photo (companion only)")

	return cmd
}
