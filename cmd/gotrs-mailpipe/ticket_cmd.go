package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Create tickets and read their threads",
}

var (
	ticketEmailFlag    string
	ticketNameFlag     string
	ticketTitleFlag    string
	ticketBodyFlag     string
	ticketCategoryFlag string
	ticketPriorityFlag string
	ticketSinceFlag    int64
)

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a ticket for a requester",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.tickets.CreateTicket(cmd.Context(), &models.Ticket{
			UserEmail:   ticketEmailFlag,
			UserName:    ticketNameFlag,
			Title:       ticketTitleFlag,
			Description: ticketBodyFlag,
			Category:    ticketCategoryFlag,
			Priority:    ticketPriorityFlag,
		})
		if err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created ticket #%d\n", id)
		return nil
	},
}

var ticketMessagesCmd = &cobra.Command{
	Use:   "messages <ticket-id>",
	Short: "List a ticket's messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || ticketID <= 0 {
			return fmt.Errorf("invalid ticket id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ticket, err := a.tickets.GetTicket(cmd.Context(), ticketID)
		if err != nil {
			return err
		}
		if ticket == nil {
			return fmt.Errorf("ticket #%d not found", ticketID)
		}
		msgs, err := a.tickets.ListMessages(cmd.Context(), ticketID, ticketSinceFlag)
		if err != nil {
			return err
		}
		last, err := a.tickets.LastMessageID(cmd.Context(), ticketID)
		if err != nil {
			return err
		}
		return writeThread(cmd.OutOrStdout(), ticket, msgs, last)
	},
}

func init() {
	ticketCreateCmd.Flags().StringVar(&ticketEmailFlag, "email", "", "Requester email address (required)")
	ticketCreateCmd.Flags().StringVar(&ticketNameFlag, "name", "", "Requester display name")
	ticketCreateCmd.Flags().StringVar(&ticketTitleFlag, "title", "", "Ticket title (required)")
	ticketCreateCmd.Flags().StringVar(&ticketBodyFlag, "description", "", "Initial description")
	ticketCreateCmd.Flags().StringVar(&ticketCategoryFlag, "category", "", "Ticket category")
	ticketCreateCmd.Flags().StringVar(&ticketPriorityFlag, "priority", "", "Ticket priority (default medium)")
	_ = ticketCreateCmd.MarkFlagRequired("email")
	_ = ticketCreateCmd.MarkFlagRequired("title")

	ticketMessagesCmd.Flags().Int64Var(&ticketSinceFlag, "since", 0, "Only show messages with an id greater than this")

	ticketCmd.AddCommand(ticketCreateCmd)
	ticketCmd.AddCommand(ticketMessagesCmd)
	rootCmd.AddCommand(ticketCmd)
}

func writeThread(w io.Writer, ticket *models.Ticket, msgs []*models.Message, lastID int64) error {
	fmt.Fprintf(w, "Ticket #%d: %s (%s, %s <%s>)\n", ticket.ID, ticket.Title, ticket.Status, ticket.UserName, ticket.UserEmail)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSENDER\tNAME\tCREATED\tMESSAGE")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.SenderType, m.SenderName, m.CreatedAt.Format("2006-01-02 15:04"), firstLine(m.Body))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Last message id: %d\n", lastID)
	return err
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " ..."
		}
	}
	return s
}
