// Command undobench drives undo quanta through generated transaction
// workloads and reports commit, rollback and memory statistics.
package main

func main() {
	execute()
}
