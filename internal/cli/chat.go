package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/bluehawksai/bluehawks-cli/internal/agent"
	"github.com/bluehawksai/bluehawks-cli/internal/core"
	"github.com/bluehawksai/bluehawks-cli/internal/logging"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc"
	chatrpc "github.com/bluehawksai/bluehawks-cli/internal/rpc/chat"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc/connectjson"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// NewChatCmd runs a single prompt, in-process by default or against a
// running daemon with --remote.
func NewChatCmd(opts *Options) *cobra.Command {
	var (
		remote     bool
		subAgent   string
		planMode   bool
		yolo       bool
		resumeName string
		contFlag   bool
		saveName   string
	)

	cmd := &cobra.Command{
		Use:   "chat \"<prompt>\"",
		Short: "Send a prompt to the agent and stream the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}

			if remote {
				req := rpc.ChatRequest{Prompt: prompt, SubAgent: subAgent}
				baseURL := daemonURL(cfg.Server.Addr)
				switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
				case "ndjson":
					return chatNDJSON(cmd.Context(), cmd, baseURL+"/chat", req)
				default:
					return chatConnect(cmd.Context(), cmd, baseURL+chatrpc.ConnectChatProcedure, req)
				}
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			c, err := core.Build(cmd.Context(), cfg, logger, core.Options{
				Resume:   resumeName,
				Continue: contFlag,
				PlanMode: planMode,
			})
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			if yolo {
				c.Executor.SetApprovalMode(tools.ApprovalNever)
			} else {
				c.Executor.SetApprovalCallback(terminalApproval(cmd))
			}

			out := cmd.OutOrStdout()
			cb := agent.Callbacks{
				OnChunk: func(text string) { fmt.Fprint(out, text) },
				OnToolStart: func(name string, args map[string]any) {
					fmt.Fprintf(out, "\n[tool %s]\n", name)
				},
				OnToolEnd: func(name, result string) {
					if result == "Error" {
						fmt.Fprintf(out, "[tool %s failed]\n", name)
					}
				},
			}

			var resp agent.Response
			if subAgent != "" {
				resp, err = c.Orchestrator.RunSubAgent(cmd.Context(), subAgent, prompt, cb)
			} else {
				resp, err = c.Orchestrator.Chat(cmd.Context(), prompt, cb)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n\n[%d iterations, %d tokens]\n", resp.Iterations, resp.TokenUsage.TotalTokens)

			if saveName != "" || subAgent == "" {
				if err := c.Storage.Save(c.Session, saveName); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: session not saved: %v\n", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Stream from a running daemon instead of in-process")
	cmd.Flags().StringVar(&subAgent, "sub-agent", "", "Run a predefined sub-agent (coder, researcher, shell)")
	cmd.Flags().BoolVar(&planMode, "plan", false, "Enable plan mode for this turn")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Skip all tool approval prompts")
	cmd.Flags().StringVar(&resumeName, "resume", "", "Resume a saved session by name or id")
	cmd.Flags().BoolVar(&contFlag, "continue", false, "Continue the most recent session")
	cmd.Flags().StringVar(&saveName, "save", "", "Save the session under a name")
	return cmd
}

// terminalApproval prompts on the command's input stream.
func terminalApproval(cmd *cobra.Command) tools.ApprovalFunc {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(name string, args map[string]any) bool {
		payload, _ := json.Marshal(args)
		fmt.Fprintf(cmd.OutOrStdout(), "\nAllow tool %s %s? [y/N] ", name, payload)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func chatNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.ChatRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.ChatEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func chatConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.ChatRequest) error {
	client := connect.NewClient[rpc.ChatStreamRequest, rpc.ChatEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.ChatStreamRequest{Chat: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.ChatStreamRequest{Cancel: true, SessionID: reqBody.SessionID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.ChatEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "token":
		fmt.Fprint(out, evt.Token)
	case "message":
		fmt.Fprintln(out, evt.Message)
	case "tool":
		if evt.ToolOutput == "" {
			fmt.Fprintf(out, "\n[tool %s]\n", evt.ToolName)
		}
	case "done":
		fmt.Fprintf(out, "\n\n[%d iterations, %d tokens]\n", evt.Iterations, evt.TokensUsed)
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
