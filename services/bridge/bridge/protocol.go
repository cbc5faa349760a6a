// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

// Routes served by the bridge worker.
const (
	RouteStatus             = "/status"
	RouteInitLinter         = "/init-linter"
	RouteAnalyzeJavaScript  = "/analyze-js"
	RouteAnalyzeTypeScript  = "/analyze-ts"
	RouteCreateTsConfigFile = "/create-tsconfig-file"
	RouteClose              = "/close"
)

// StatusOK is the body the worker answers on RouteStatus when alive.
const StatusOK = "OK!"

// FileType classifies a source file as production or test code.
type FileType string

const (
	FileTypeMain FileType = "MAIN"
	FileTypeTest FileType = "TEST"
)

// Rule is one enabled lint rule with its configuration.
type Rule struct {
	// Key is the rule identifier understood by the worker.
	Key string `json:"key"`

	// Configurations are rule options, passed through verbatim.
	Configurations []any `json:"configurations"`

	// FileTypeTarget restricts the rule to MAIN and/or TEST files.
	FileTypeTarget []FileType `json:"fileTypeTarget"`
}

// InitLinterRequest configures one named linter inside the worker.
type InitLinterRequest struct {
	Rules        []Rule   `json:"rules"`
	Environments []string `json:"environments"`
	Globals      []string `json:"globals"`
	LinterID     string   `json:"linterId"`
}

// AnalysisRequest asks the worker to analyze one file.
type AnalysisRequest struct {
	// FilePath is the absolute path of the file.
	FilePath string `json:"filePath"`

	// FileType is MAIN or TEST.
	FileType FileType `json:"fileType"`

	// FileContent is sent when the worker cannot read the file itself
	// (non-UTF-8 encoding, unsaved editor buffer). Empty means "read from disk".
	FileContent string `json:"fileContent,omitempty"`

	// IgnoreHeaderComments skips leading license comments.
	IgnoreHeaderComments bool `json:"ignoreHeaderComments"`

	// TsConfigs lists tsconfig.json files used to build the TS program.
	TsConfigs []string `json:"tsConfigs"`

	// LinterID selects the linter configured by InitLinter.
	LinterID string `json:"linterId"`
}

// Location is a source range.
type Location struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// IssueLocation is a secondary location attached to an issue.
type IssueLocation struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Message   string `json:"message,omitempty"`
}

// Issue is one diagnostic reported by a rule.
type Issue struct {
	Line               int             `json:"line"`
	Column             int             `json:"column"`
	EndLine            int             `json:"endLine,omitempty"`
	EndColumn          int             `json:"endColumn,omitempty"`
	Message            string          `json:"message"`
	RuleID             string          `json:"ruleId"`
	SecondaryLocations []IssueLocation `json:"secondaryLocations,omitempty"`
	Cost               *float64        `json:"cost,omitempty"`
}

// ParsingErrorCode classifies a parsing error.
type ParsingErrorCode string

const (
	ParsingErrorParsing              ParsingErrorCode = "PARSING"
	ParsingErrorFailingTypeScript    ParsingErrorCode = "FAILING_TYPESCRIPT"
	ParsingErrorLinterInitialization ParsingErrorCode = "LINTER_INITIALIZATION"
	ParsingErrorGeneral              ParsingErrorCode = "GENERAL_ERROR"
)

// ParsingError is reported instead of issues when the file cannot be parsed.
type ParsingError struct {
	// Line is nil when the worker could not locate the error.
	Line    *int             `json:"line,omitempty"`
	Message string           `json:"message"`
	Code    ParsingErrorCode `json:"code"`
}

// CpdToken is one duplication-detection token.
type CpdToken struct {
	Location Location `json:"location"`
	Image    string   `json:"image"`
}

// AnalysisResponse is the worker's answer for one file.
type AnalysisResponse struct {
	ParsingError *ParsingError `json:"parsingError,omitempty"`
	Issues       []Issue       `json:"issues"`
	UcfgPaths    []string      `json:"ucfgPaths,omitempty"`
	CpdTokens    []CpdToken    `json:"cpdTokens,omitempty"`
}

// TsConfigResponse is returned by RouteCreateTsConfigFile.
type TsConfigResponse struct {
	Filename string `json:"filename"`
}

// errorEnvelope detects the worker's generic {"error": "..."} payload.
type errorEnvelope struct {
	Error string `json:"error"`
}
