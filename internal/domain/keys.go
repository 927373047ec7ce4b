package domain

// KeyPrefix namespaces every key the engine writes to the shared store.
const KeyPrefix = "unisearch:"
