// Package tgui holds the Telegram UI primitives the bot's renderer is built on:
// inline keyboard builders, callback data limits and HTML-safe text helpers.
package tgui
