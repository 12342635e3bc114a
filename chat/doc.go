// Package chat is the boundary between the moderator and the chat network.
//
// It defines the closed set of membership events the moderator understands
// (Join, Part, Names, ISupport and the catch-all Other) and two transports
// that produce them:
//   - IRC: a generic IRC client (TLS by default) that identifies with NickServ,
//     joins the configured channel and grants voice with MODE +v.
//   - Twitch: a Twitch chat client with the membership capability. Twitch has
//     no voice mode, so promotion grants VIP through the Helix API instead.
//
// Transports deliver events on a channel that is closed when the connection
// ends; Err then returns the cause. Reconnecting is left to the process
// supervisor.
package chat
