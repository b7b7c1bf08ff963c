// Package notifier delivers fired alarms to people.
//
// A Service fans a notification out to every configured deliverer (console,
// webhook, Telegram) behind a shared token bucket. Delivery is best effort:
// errors are returned to the caller, which logs them and carries on.
package notifier
