package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/chat"
	"github.com/spigell/resumebot/internal/logger"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions about the resume from the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		ask(cmd)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("conversation-id", "c", "", "resume an existing conversation instead of starting a new one")
}

// ask runs an interactive question loop against the same pipeline the HTTP
// endpoint uses. Each session gets its own conversation id so follow-up
// questions are answered with context.
func ask(cmd *cobra.Command) {
	ctx := context.Background()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	service, redisClient, err := buildPipeline(ctx, config, zlog)
	if err != nil {
		zlog.Fatal("building the answer pipeline", zap.Error(err))
	}
	defer redisClient.Close()

	conversationID := strings.TrimSpace(cmd.Flag("conversation-id").Value.String())
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	zlog.Info("starting interactive session", zap.String(logger.FieldConversation, conversationID))
	fmt.Println("Ask a question about the resume. Press Ctrl+C to exit.")

	question := promptui.Prompt{Label: "Question"}

	for {
		input, err := question.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				zlog.Info("exiting", zap.String("reason", "interrupted"))
				return
			}
			zlog.Fatal("reading question", zap.Error(err))
		}

		answer, err := service.Answer(ctx, input, conversationID)
		if err != nil {
			if errors.Is(err, chat.ErrEmptyQuestion) {
				continue
			}
			zlog.Error("answering question", zap.Error(err))
			continue
		}

		fmt.Printf("\n%s\n\n", answer)
	}
}
