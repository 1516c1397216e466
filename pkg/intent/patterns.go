package intent

import "regexp"

// capabilityTemplate is one capability a matched pattern contributes.
type capabilityTemplate struct {
	name       string
	parameters map[string]any
	priority   int
	confidence float64
}

// pattern pairs a compiled regex with the capabilities it contributes.
// Order matters: step 2 of Analyze dedupes by capability name, keeping
// the first match, so patterns are evaluated in this fixed order.
type pattern struct {
	name         string
	regex        *regexp.Regexp
	capabilities []capabilityTemplate
}

var abbreviations = []struct{ abbr, expansion string }{
	{"doc", "document"},
	{"pic", "picture"},
	{"calc", "calculator"},
	{"app", "application"},
	{"info", "information"},
	{"stats", "statistics"},
	{"ui", "user interface"},
	{"db", "database"},
}

var visualKeywords = regexp.MustCompile(`\b(show|display|visual|graph|chart|picture|image)\b`)

func mustCompile(pat string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pat)
}

// patterns is the fixed regex-to-capability mapping table.
var patterns = []pattern{
	{
		name:  "create_document",
		regex: mustCompile(`\b(create|make|start|generate|write|draft)\s+a?\s*(document|doc|text|letter|email|report|essay|summary|article|post|message)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "creative"}, 1, 0.9},
			{"file_system", map[string]any{"access": "write"}, 2, 0.8},
		},
	},
	{
		name:  "edit_document",
		regex: mustCompile(`\b(edit|modify|change|update|revise)\s+a?\s*(document|doc|text|letter|email|report|essay|summary|article|post|message)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "editing"}, 1, 0.9},
			{"file_system", map[string]any{"access": "read_write"}, 2, 0.8},
		},
	},
	{
		name:  "format_document",
		regex: mustCompile(`\b(format|style|layout|arrange)\s+a?\s*(document|doc|text|letter|email|report|essay|summary|article|post|message)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "formatting"}, 2, 0.8},
			{"ui_rendering", map[string]any{"type": "document_editor"}, 1, 0.9},
		},
	},
	{
		name:  "image_viewing",
		regex: mustCompile(`\b(view|show|display|see|open)\s+a?\s*(image|photo|picture|pic|photograph|png|jpg|jpeg|gif)\b`),
		capabilities: []capabilityTemplate{
			{"media_processing", map[string]any{"type": "image", "mode": "view"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "image_viewer"}, 2, 0.9},
		},
	},
	{
		name:  "image_editing",
		regex: mustCompile(`\b(edit|modify|change|update|adjust|filter)\s+a?\s*(image|photo|picture|pic|photograph|png|jpg|jpeg|gif)\b`),
		capabilities: []capabilityTemplate{
			{"media_processing", map[string]any{"type": "image", "mode": "edit"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "image_editor"}, 2, 0.9},
		},
	},
	{
		name:  "video_playback",
		regex: mustCompile(`\b(watch|play|view|show|run)\s+a?\s*(video|movie|film|clip|youtube|mp4|avi|mov)\b`),
		capabilities: []capabilityTemplate{
			{"media_processing", map[string]any{"type": "video", "mode": "play"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "video_player"}, 2, 0.9},
		},
	},
	{
		name:  "audio_playback",
		regex: mustCompile(`\b(listen|play|hear)\s+a?\s*(audio|music|sound|song|track|mp3|wav|podcast)\b`),
		capabilities: []capabilityTemplate{
			{"media_processing", map[string]any{"type": "audio", "mode": "play"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "audio_player"}, 2, 0.9},
		},
	},
	{
		name:  "file_browsing",
		regex: mustCompile(`\b(browse|find|search|list)\s+a?\s*(file|folder|directory|document|location)\b`),
		capabilities: []capabilityTemplate{
			{"file_system", map[string]any{"access": "read"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "file_browser"}, 2, 0.9},
		},
	},
	{
		name:  "file_management",
		regex: mustCompile(`\b(move|copy|delete|rename)\s+a?\s*(file|folder|directory|document)\b`),
		capabilities: []capabilityTemplate{
			{"file_system", map[string]any{"access": "read_write"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "file_manager"}, 2, 0.9},
		},
	},
	{
		name:  "data_analysis",
		regex: mustCompile(`\b(analyze|analyse|examine|investigate|study|research)\s+a?\s*(data|information|statistics|numbers|figures|results)\b`),
		capabilities: []capabilityTemplate{
			{"data_analysis", map[string]any{"mode": "analysis"}, 1, 0.9},
			{"text_generation", map[string]any{"mode": "analytical"}, 2, 0.8},
		},
	},
	{
		name:  "data_visualization",
		regex: mustCompile(`\b(visualize|visualise|chart|graph|plot|display)\s+a?\s*(data|information|statistics|numbers|figures|results)\b`),
		capabilities: []capabilityTemplate{
			{"data_analysis", map[string]any{"mode": "visualization"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "data_visualizer"}, 2, 0.9},
		},
	},
	{
		name:  "calculation",
		regex: mustCompile(`\b(calculate|compute|figure out|solve|find)\s+a?\s*(equation|formula|expression|sum|average|mean|median|percentage)\b`),
		capabilities: []capabilityTemplate{
			{"arithmetic", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "calculator"}, 2, 0.8},
		},
	},
	{
		name:  "web_browsing",
		regex: mustCompile(`\b(browse|open|go to|visit|navigate to|view)\s+a?\s*(website|site|webpage|url|link|address|http|www)\b`),
		capabilities: []capabilityTemplate{
			{"web_browser", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "web_view"}, 2, 0.9},
		},
	},
	{
		name:  "web_search",
		regex: mustCompile(`\b(search|find|look up|google|query|research)\s+a?\s*(information|info|topic|subject|question|web|internet|online)\b`),
		capabilities: []capabilityTemplate{
			{"web_search", map[string]any{}, 1, 0.9},
			{"text_generation", map[string]any{"mode": "informative"}, 2, 0.8},
			{"ui_rendering", map[string]any{"type": "search_results"}, 3, 0.8},
		},
	},
	{
		name:  "communication",
		regex: mustCompile(`\b(send|compose|write)\s+a?\s*(email|message|chat|text|sms)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "communication"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "message_composer"}, 2, 0.8},
		},
	},
	{
		name:  "calculator",
		regex: mustCompile(`\b(calculator|calculate|compute|math|arithmetic|add|subtract|multiply|divide)\b`),
		capabilities: []capabilityTemplate{
			{"arithmetic", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "calculator"}, 2, 0.9},
		},
	},
	{
		name:  "calendar",
		regex: mustCompile(`\b(calendar|schedule|appointment|meeting|event|reminder|date)\b`),
		capabilities: []capabilityTemplate{
			{"calendar", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "calendar"}, 2, 0.9},
		},
	},
	{
		name:  "weather",
		regex: mustCompile(`\b(weather|forecast|temperature|climate|rain|snow|sunny|cloudy)\b`),
		capabilities: []capabilityTemplate{
			{"weather", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "weather"}, 2, 0.9},
		},
	},
	{
		name:  "maps",
		regex: mustCompile(`\b(map|directions|navigate|location|address|route|path|distance)\b`),
		capabilities: []capabilityTemplate{
			{"maps", map[string]any{}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "map"}, 2, 0.9},
		},
	},
	{
		name:  "app_request",
		regex: mustCompile(`\b(open|start|launch|run|use)\s+a?\s*(app|application|program|software)\b`),
		capabilities: []capabilityTemplate{
			{"app_launcher", map[string]any{}, 1, 0.8},
		},
	},
	{
		name:  "ui_request",
		regex: mustCompile(`\b(show|display|present|interface|ui|screen|button|menu|form|input)\b`),
		capabilities: []capabilityTemplate{
			{"ui_rendering", map[string]any{"type": "general"}, 1, 0.8},
		},
	},
	{
		name:  "help_request",
		regex: mustCompile(`\b(help|assist|support|guide|tutorial|instructions|how to|how do i)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "instructional"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "help_display"}, 2, 0.8},
		},
	},
	{
		name:  "info_request",
		regex: mustCompile(`\b(tell|inform|what is|who is|where is|when is|why is|how is|information about|define|explain|describe)\b`),
		capabilities: []capabilityTemplate{
			{"text_generation", map[string]any{"mode": "informative"}, 1, 0.9},
			{"ui_rendering", map[string]any{"type": "information_display"}, 2, 0.8},
		},
	},
}

// connectionRules is the fixed source-capability -> target-capability
// hint table (spec.md §4.1 step 6).
var connectionRules = map[string][]string{
	"ui_rendering":    {"text_generation", "data_analysis", "media_processing", "file_system"},
	"text_generation": {"data_analysis", "file_system", "web_search"},
	"data_analysis":   {"file_system", "database", "web_search"},
}
