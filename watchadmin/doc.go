// Package watchadmin exposes watcher registrations to SQL through the
// watch_admin virtual table module:
//
//	CREATE VIRTUAL TABLE temp.watchers USING watch_admin(<instance>);
//	SELECT collection, coarse, detailed FROM temp.watchers;
//
// One row is reported per stored collection of the named instance.
package watchadmin
