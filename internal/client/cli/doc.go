// Package cli implements the hammer command-line client.
//
// Every command loads the configuration, opens the local database and the
// remote client, runs, and closes them again. The shell command keeps one App
// alive and feeds each input line through the same command tree, so folder
// keys and the unlocked identity stay cached between commands.
//
// The vault passphrase is asked for only when a command needs the identity;
// HAMMER_PASSPHRASE supplies it non-interactively.
package cli
