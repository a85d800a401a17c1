// Package xmltools registers the merge engine's operations as tools.
//
// Writes go through merge.Service so tool calls share document locks and
// the journal with the CLI, batch plans and the inbox watcher. Results are
// JSON objects except for the tools that return XML text.
package xmltools
