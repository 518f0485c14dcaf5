// Package commands implements the monctl subcommands. Each handler
// drives one exchange with the controller and returns the process exit
// code, so the dispatch layer stays a thin shell around them.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/monctl/internal/broker"
	"github.com/danmuck/monctl/internal/config"
	"github.com/danmuck/monctl/internal/controller"
	"github.com/danmuck/monctl/internal/events"
	"github.com/danmuck/monctl/internal/mgmt"
)

// Controller is the slice of the session layer the handlers need.
type Controller interface {
	Publish(ev *broker.Event) error
	Receive(ctx context.Context, timeout time.Duration) (*broker.Event, error)
	Transact(ctx context.Context, req *broker.Event, respName string) (*broker.Event, error)
}

// renderJSON writes v as JSON, indented when client.pretty_json is on.
// encoding/json sorts map keys, which keeps reports reproducible.
func renderJSON(w io.Writer, settings *config.Settings, v any) error {
	var (
		out []byte
		err error
	)
	if settings.GetBool("client", "pretty_json") {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// resultOf extracts the single result record from a response event.
func resultOf(resp *broker.Event) (mgmt.Result, bool) {
	res, err := mgmt.ResultFromValue(resp.Args[1])
	if err != nil {
		log.Error().Msgf("malformed result in %s: %v", resp.Name, err)
		return mgmt.Result{}, false
	}
	return res, true
}

type GetConfigOptions struct {
	// Filename receives the configuration; empty or "-" means stdout.
	Filename string
	AsJSON   bool
}

// GetConfig fetches the controller's deployed cluster configuration and
// writes it out as TOML or JSON.
func GetConfig(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer, opts GetConfigOptions) int {
	req := events.NewGetConfigurationRequest(events.MakeUUID())
	resp, err := ctl.Transact(ctx, req, events.GetConfigurationResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	res, ok := resultOf(resp)
	if !ok {
		return 1
	}
	if !res.Success {
		log.Error().Msgf("response indicates failure: %s", errorOrDefault(res.Error))
		return 1
	}
	if res.Data == nil {
		log.Error().Msgf("received result did not contain configuration data")
		return 1
	}

	cfg, err := mgmt.ConfigurationFromValue(res.Data)
	if err != nil {
		log.Error().Msgf("configuration data invalid: %v", err)
		return 1
	}

	if opts.Filename != "" && opts.Filename != "-" {
		f, err := os.Create(opts.Filename)
		if err != nil {
			log.Error().Msgf("cannot write %s: %v", opts.Filename, err)
			return 1
		}
		defer f.Close()
		w = f
	}

	if opts.AsJSON {
		if err := renderJSON(w, settings, cfg.ToJSONData()); err != nil {
			log.Error().Msgf("cannot render configuration: %v", err)
			return 1
		}
		return 0
	}

	out, err := cfg.RenderTOML()
	if err != nil {
		log.Error().Msgf("cannot render configuration: %v", err)
		return 1
	}
	if _, err := w.Write(out); err != nil {
		log.Error().Msgf("cannot write configuration: %v", err)
		return 1
	}
	return 0
}

// GetInstances reports the agents connected to the controller, keyed by
// instance name.
func GetInstances(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer) int {
	req := events.NewGetInstancesRequest(events.MakeUUID())
	resp, err := ctl.Transact(ctx, req, events.GetInstancesResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	res, ok := resultOf(resp)
	if !ok {
		return 1
	}
	if !res.Success {
		log.Error().Msgf("response indicates failure: %s", errorOrDefault(res.Error))
		return 1
	}
	if res.Data == nil {
		log.Error().Msgf("received result did not contain instance data")
		return 1
	}

	jsonData := map[string]any{}
	if vec, isVec := res.Data.(broker.Vector); isVec {
		for _, elem := range vec {
			inst, err := mgmt.InstanceFromValue(elem)
			if err != nil {
				log.Error().Msgf("instance data invalid: %v", err)
				break
			}
			jsonData[inst.Name] = inst.ToJSONData()
		}
	} else {
		log.Error().Msgf("instance data invalid: not a list")
	}

	if err := renderJSON(w, settings, jsonData); err != nil {
		log.Error().Msgf("cannot render instances: %v", err)
		return 1
	}
	return 0
}

// GetNodes reports the status of every node on every instance. Any
// per-instance error lands in the errors array and makes the exit code
// nonzero, while the remaining results still render.
func GetNodes(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer) int {
	req := events.NewGetNodesRequest(events.MakeUUID())
	resp, err := ctl.Transact(ctx, req, events.GetNodesResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	results, err := mgmt.ResultsFromValue(resp.Args[1])
	if err != nil {
		log.Error().Msgf("malformed results in %s: %v", resp.Name, err)
		return 1
	}
	mgmt.SortResults(results)

	jsonResults := map[string]any{}
	jsonErrors := []map[string]any{}

	for _, res := range results {
		if !res.Success {
			jsonErrors = append(jsonErrors, map[string]any{
				"source": res.Instance,
				"error":  res.Error,
			})
			continue
		}
		if res.Data == nil {
			jsonErrors = append(jsonErrors, map[string]any{
				"source": res.Instance,
				"error":  "result does not contain node status data",
			})
			continue
		}

		nodes := map[string]any{}
		vec, isVec := res.Data.(broker.Vector)
		if !isVec {
			log.Error().Msgf("node status data invalid: not a list")
			continue
		}
		for _, elem := range vec {
			nstat, err := mgmt.NodeStatusFromValue(elem)
			if err != nil {
				log.Error().Msgf("node status data invalid: %v", err)
				break
			}
			nodes[nstat.Node] = nstat.ToJSONData()
		}
		jsonResults[res.Instance] = nodes
	}

	if err := renderJSON(w, settings, map[string]any{
		"results": jsonResults,
		"errors":  jsonErrors,
	}); err != nil {
		log.Error().Msgf("cannot render node report: %v", err)
		return 1
	}
	if len(jsonErrors) > 0 {
		return 1
	}
	return 0
}

type GetIDValueOptions struct {
	ID string
	// Nodes restricts the query; empty means all nodes.
	Nodes []string
}

// GetIDValue queries a script-level identifier on cluster nodes. Node
// answers arrive as JSON-rendered strings and are re-parsed so the
// report nests them natively.
func GetIDValue(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer, opts GetIDValueOptions) int {
	req := events.NewGetIDValueRequest(events.MakeUUID(), opts.ID, opts.Nodes)
	resp, err := ctl.Transact(ctx, req, events.GetIDValueResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	results, err := mgmt.ResultsFromValue(resp.Args[1])
	if err != nil {
		log.Error().Msgf("malformed results in %s: %v", resp.Name, err)
		return 1
	}
	mgmt.SortResults(results)

	jsonResults := map[string]any{}
	jsonErrors := []map[string]any{}

	for _, res := range results {
		if !res.Success {
			jsonErrors = append(jsonErrors, map[string]any{
				"source": res.Node,
				"error":  res.Error,
			})
			continue
		}
		if res.Node == "" {
			jsonErrors = append(jsonErrors, map[string]any{
				"error": "result lacking node",
			})
			continue
		}

		var value any
		raw, _ := res.Data.(broker.String)
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			jsonErrors = append(jsonErrors, map[string]any{
				"source": res.Node,
				"error":  fmt.Sprintf("JSON decode error: %v", err),
			})
			continue
		}
		jsonResults[res.Node] = value
	}

	if err := renderJSON(w, settings, map[string]any{
		"results": jsonResults,
		"errors":  jsonErrors,
	}); err != nil {
		log.Error().Msgf("cannot render identifier report: %v", err)
		return 1
	}
	if len(jsonErrors) > 0 {
		return 1
	}
	return 0
}

type DeployOptions struct {
	// Path names the cluster configuration file; "-" means Stdin.
	Path  string
	Stdin io.Reader
}

// Deploy parses a cluster configuration and asks the controller to
// deploy it, reporting per-node launch outcomes. A result without a
// node names an agent that had nothing to launch; its error state
// counts, but it renders no output.
func Deploy(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer, opts DeployOptions) int {
	var (
		data []byte
		err  error
	)
	if opts.Path == "-" {
		data, err = io.ReadAll(opts.Stdin)
	} else {
		data, err = os.ReadFile(opts.Path)
	}
	if err != nil {
		log.Error().Msgf("cannot read cluster configuration: %v", err)
		return 1
	}

	cfg, err := mgmt.ParseConfiguration(data)
	if err != nil {
		log.Error().Msgf("configuration has errors, not deploying: %v", err)
		return 1
	}

	req := events.NewSetConfigurationRequest(events.MakeUUID(), cfg.ToValue())
	resp, err := ctl.Transact(ctx, req, events.SetConfigurationResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	results, err := mgmt.ResultsFromValue(resp.Args[1])
	if err != nil {
		log.Error().Msgf("malformed results in %s: %v", resp.Name, err)
		return 1
	}
	mgmt.SortResults(results)

	jsonData := map[string]any{}
	retval := 0

	for _, res := range results {
		if !res.Success {
			retval = 1
		}
		if res.Node == "" {
			continue
		}

		entry := map[string]any{
			"success":  res.Success,
			"instance": res.Instance,
		}
		if res.Data != nil {
			outputs, err := mgmt.NodeOutputsFromValue(res.Data)
			if err != nil {
				log.Error().Msgf("node output data invalid: %v", err)
			} else {
				entry["stdout"] = outputs.Stdout
				entry["stderr"] = outputs.Stderr
			}
		}
		jsonData[res.Node] = entry
	}

	if err := renderJSON(w, settings, jsonData); err != nil {
		log.Error().Msgf("cannot render deployment report: %v", err)
		return 1
	}
	return retval
}

// Monitor prints every management event the controller topic carries,
// until the context ends. Interruption is the normal way out.
func Monitor(ctx context.Context, ctl Controller, w io.Writer) int {
	for {
		ev, err := ctl.Receive(ctx, -1)
		switch {
		case err == nil:
			fmt.Fprintf(w, "received %s\n", ev)
		case errors.Is(err, context.Canceled):
			return 0
		case errors.Is(err, controller.ErrTimeout):
			fmt.Fprintf(w, "no event received: %v\n", err)
		default:
			log.Error().Msgf("session ended: %v", err)
			return 1
		}
	}
}

// ShowSettings renders the fully resolved client settings. It is the
// one command that talks to no controller.
func ShowSettings(settings *config.Settings, w io.Writer) int {
	if err := settings.WriteTo(w); err != nil {
		log.Error().Msgf("cannot render settings: %v", err)
		return 1
	}
	return 0
}

type TestTimeoutOptions struct {
	// WithState makes the controller keep request state, exercising its
	// timeout bookkeeping.
	WithState bool
}

// TestTimeout sends the timeout-test event and reports the outcome.
func TestTimeout(ctx context.Context, ctl Controller, settings *config.Settings, w io.Writer, opts TestTimeoutOptions) int {
	req := events.NewTestTimeoutRequest(events.MakeUUID(), opts.WithState)
	resp, err := ctl.Transact(ctx, req, events.TestTimeoutResponse)
	if err != nil {
		log.Error().Msgf("no response received: %v", err)
		return 1
	}

	res, ok := resultOf(resp)
	if !ok {
		return 1
	}
	var resErr any
	if res.Error != "" {
		resErr = res.Error
	}
	if err := renderJSON(w, settings, map[string]any{
		"success": res.Success,
		"error":   resErr,
	}); err != nil {
		log.Error().Msgf("cannot render outcome: %v", err)
		return 1
	}
	return 0
}

func errorOrDefault(msg string) string {
	if msg == "" {
		return "no reason given"
	}
	return msg
}
