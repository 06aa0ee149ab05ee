// Package dispatch routes JSON-RPC calls to actions (tools/call) and views
// (resources/read) backed by a core.GrantStore and a core.AgentRegistry.
//
// The dispatcher is the error boundary of the core: every failure is logged
// here once and returned as a categorized *protocol.Error. After each action
// carrying an agent id it refreshes that agent's registry activity. Mutating
// actions publish feed events; views never mutate anything.
package dispatch
