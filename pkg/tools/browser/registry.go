package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/forage/pkg/agent/tools"
	"github.com/entrhq/forage/pkg/types"
)

// handler is one row of the dispatch table.
type handler struct {
	description string
	schema      func(o Options) map[string]interface{}
	timeout     func(o Options) time.Duration
	run         func(e *Executor, ctx context.Context, sess Session, raw string, rec Recorder) (string, error)
}

// actionOrder fixes the order in which tools are offered to the planner.
var actionOrder = []ActionKind{
	ActionNavigate,
	ActionFetchPages,
	ActionSnapshot,
	ActionClick,
	ActionTypeText,
	ActionPressKey,
	ActionSelectOption,
	ActionFillForm,
	ActionTakeScreenshot,
	ActionWaitFor,
	ActionGoBack,
}

func actionTimeout(o Options) time.Duration { return o.ActionTimeout }

func navigationTimeout(o Options) time.Duration { return o.NavigationTimeout + o.ActionTimeout }

var handlers = map[ActionKind]handler{
	ActionNavigate: {
		description: "Open a URL in the current tab. Returns the final URL, title and a short text preview. To open several URLs at once use fetch_pages.",
		schema:      navigateSchema,
		timeout:     navigationTimeout,
		run:         (*Executor).navigate,
	},
	ActionFetchPages: {
		description: "Fetch several URLs in parallel in separate tabs and return the readable text of each, in the order given. The current tab is not changed.",
		schema:      fetchPagesSchema,
		timeout:     navigationTimeout,
		run:         (*Executor).fetchPages,
	},
	ActionSnapshot: {
		description: "Return an accessibility snapshot of the current page (roles and accessible names) and capture its text. Use it to find elements to click or fill.",
		schema:      emptySchema,
		timeout:     actionTimeout,
		run:         (*Executor).snapshot,
	},
	ActionClick: {
		description: "Click an element identified by its accessibility role and accessible name, as shown in the snapshot.",
		schema:      clickSchema,
		timeout:     actionTimeout,
		run:         (*Executor).click,
	},
	ActionTypeText: {
		description: "Type text into an input identified by role and accessible name, optionally pressing Enter afterwards.",
		schema:      typeTextSchema,
		timeout:     actionTimeout,
		run:         (*Executor).typeText,
	},
	ActionPressKey: {
		description: "Press a keyboard key on the current page, e.g. Enter, Escape, ArrowDown, PageDown.",
		schema:      pressKeySchema,
		timeout:     actionTimeout,
		run:         (*Executor).pressKey,
	},
	ActionSelectOption: {
		description: "Choose an option in a select element identified by role and accessible name. value may be the option value or its visible label.",
		schema:      selectOptionSchema,
		timeout:     actionTimeout,
		run:         (*Executor).selectOption,
	},
	ActionFillForm: {
		description: "Fill several form fields at once. Each field is addressed by role and accessible name.",
		schema:      fillFormSchema,
		timeout:     actionTimeout,
		run:         (*Executor).fillForm,
	},
	ActionTakeScreenshot: {
		description: "Capture a screenshot of the current page and return a short visual description of it.",
		schema:      screenshotSchema,
		timeout:     func(o Options) time.Duration { return 3 * o.ActionTimeout },
		run:         (*Executor).takeScreenshot,
	},
	ActionWaitFor: {
		description: "Wait until the given text appears on the page, or until the network is idle when no text is given.",
		schema:      waitForSchema,
		timeout:     func(o Options) time.Duration { return o.MaxWait + 5*time.Second },
		run:         (*Executor).waitFor,
	},
	ActionGoBack: {
		description: "Go back to the previous page in the current tab's history.",
		schema:      emptySchema,
		timeout:     navigationTimeout,
		run:         (*Executor).goBack,
	},
}

func definitions(o Options) []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(actionOrder))
	for _, kind := range actionOrder {
		h := handlers[kind]
		defs = append(defs, tools.Definition(string(kind), h.description, h.schema(o)))
	}
	return defs
}

func availableActions() string {
	names := make([]string, len(actionOrder))
	for i, kind := range actionOrder {
		names[i] = string(kind)
	}
	return strings.Join(names, ", ")
}

func emptySchema(Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

func locatorProperties() map[string]interface{} {
	return map[string]interface{}{
		"role":  tools.StringProperty("ARIA role of the element, e.g. button, link, textbox, combobox, checkbox"),
		"name":  tools.StringProperty("Accessible name of the element as shown in the snapshot"),
		"index": tools.IntegerProperty("Zero-based index when several elements share the role and name. Default: 0"),
	}
}

func navigateSchema(Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"url": tools.StringProperty("URL to open (must include protocol, e.g. https://example.com)"),
	}, []string{"url"})
}

func fetchPagesSchema(o Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"urls": tools.ArrayProperty(
			fmt.Sprintf("URLs to fetch in parallel (at most %d)", o.FetchMaxURLs),
			tools.StringProperty("URL including protocol"),
			o.FetchMaxURLs,
		),
	}, []string{"urls"})
}

func clickSchema(Options) map[string]interface{} {
	return tools.BaseToolSchema(locatorProperties(), []string{"role", "name"})
}

func typeTextSchema(Options) map[string]interface{} {
	props := locatorProperties()
	props["text"] = tools.StringProperty("Text to enter; replaces the current value")
	props["submit"] = tools.BooleanProperty("Press Enter after typing. Default: false")
	return tools.BaseToolSchema(props, []string{"role", "name", "text"})
}

func pressKeySchema(Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"key": tools.StringProperty("Key name, e.g. Enter, Tab, Escape, ArrowDown"),
	}, []string{"key"})
}

func selectOptionSchema(Options) map[string]interface{} {
	props := locatorProperties()
	props["value"] = tools.StringProperty("Option value or visible label to select")
	return tools.BaseToolSchema(props, []string{"role", "name", "value"})
}

func fillFormSchema(Options) map[string]interface{} {
	field := tools.BaseToolSchema(map[string]interface{}{
		"role":  tools.StringProperty("ARIA role of the input, usually textbox"),
		"name":  tools.StringProperty("Accessible name of the input"),
		"value": tools.StringProperty("Value to fill"),
	}, []string{"role", "name", "value"})
	return tools.BaseToolSchema(map[string]interface{}{
		"fields": tools.ArrayProperty("Fields to fill, in order", field, 0),
	}, []string{"fields"})
}

func screenshotSchema(Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"full_page": tools.BooleanProperty("Capture the whole scrollable page instead of the viewport. Default: false"),
	}, nil)
}

func waitForSchema(o Options) map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"text": tools.StringProperty("Text to wait for. Omit to wait for the network to go idle"),
		"timeout_seconds": tools.IntegerProperty(
			fmt.Sprintf("Maximum wait in seconds (at most %d). Default: 10", int(o.MaxWait.Seconds()))),
	}, nil)
}
