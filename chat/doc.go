// Package chat contains the optional Twitch chat announcer.
//
// The announcer joins one chat channel over IRC and repeats the plain-text
// summary of selected notifications there (for example "alice is live with
// Chess: https://www.twitch.tv/alice").
//
// Credentials: the IRC client requires a bot username and a user OAuth token
// with the chat:edit scope (TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN). An app
// access token cannot be used for chat.
package chat
