package consts

const MailboxDelimiter = '/'

// DefaultTrashMailbox is used by the trash action when the configuration
// does not name one.
const DefaultTrashMailbox = "Trash"

// DefaultSourceMailbox is processed when an account lists no mailboxes.
const DefaultSourceMailbox = "INBOX"
